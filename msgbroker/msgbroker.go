package msgbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pikapool/pikapool-api/bid"
)

// MsgBroker is a message-broker for async message communication.
type MsgBroker interface {
	// PublishMsg publishes a message to the desired topic.
	PublishMsg(ctx context.Context, topicName TopicName, data []byte) error
}

// TopicName is a topic name.
type TopicName string

const (
	// BidAdmittedTopic is the topic name for bid-admitted messages.
	BidAdmittedTopic TopicName = "bid-admitted"
)

// OperationID is a unique identifier for messages.
type OperationID string

// BidAdmitted is published after a bid is stored.
type BidAdmitted struct {
	OperationID        OperationID `json:"operationId"`
	BidID              string      `json:"bidId"`
	CID                string      `json:"cid"`
	ChainID            string      `json:"chainId"`
	AuctionID          string      `json:"auctionId"`
	AuctionAddress     string      `json:"auctionAddress"`
	AuctionName        string      `json:"auctionName"`
	SettlementContract string      `json:"settlementContract"`
	Signer             string      `json:"signer"`
	Units              string      `json:"units"`
	BasePrice          string      `json:"basePrice"`
	Tip                string      `json:"tip"`
	// Cost is amount*(basePrice+tip) formatted in ether.
	Cost       string    `json:"cost"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PublishMsgBidAdmitted publishes a message to the bid-admitted topic.
func PublishMsgBidAdmitted(ctx context.Context, mb MsgBroker, b bid.Bid) error {
	if b.Values.Amount == nil || b.Values.BasePrice == nil || b.Values.Tip == nil {
		return errors.New("bid values are incomplete")
	}
	c, err := b.Payload.CID()
	if err != nil {
		return fmt.Errorf("computing bid cid: %s", err)
	}
	msg := BidAdmitted{
		OperationID:        OperationID(ulid.Make().String()),
		BidID:              b.ID(),
		CID:                c.String(),
		ChainID:            b.Payload.ChainID(),
		AuctionID:          b.Auction.ID(),
		AuctionAddress:     strings.ToLower(b.Auction.Address.Hex()),
		AuctionName:        b.Auction.Name,
		SettlementContract: strings.ToLower(b.Auction.SettlementContract.Hex()),
		Signer:             strings.ToLower(b.Signer.Hex()),
		Units:              b.Values.Amount.String(),
		BasePrice:          b.Values.BasePrice.String(),
		Tip:                b.Values.Tip.String(),
		Cost:               bid.FormatEther(b.Values.Cost()),
		ReceivedAt:         b.ReceivedAt.UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling bid-admitted message: %s", err)
	}
	if err := mb.PublishMsg(ctx, BidAdmittedTopic, data); err != nil {
		return fmt.Errorf("publishing bid-admitted message: %s", err)
	}
	return nil
}

// UnmarshalBidAdmitted decodes a bid-admitted message.
func UnmarshalBidAdmitted(data []byte) (BidAdmitted, error) {
	var msg BidAdmitted
	if err := json.Unmarshal(data, &msg); err != nil {
		return BidAdmitted{}, fmt.Errorf("unmarshal bid-admitted: %s", err)
	}
	if msg.OperationID == "" {
		return BidAdmitted{}, errors.New("operation-id is empty")
	}
	if msg.BidID == "" {
		return BidAdmitted{}, errors.New("bid id is empty")
	}
	return msg, nil
}
