package bid

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

// ErrMessageNotObject is returned when the typed data message is missing.
var ErrMessageNotObject = errors.New("TypedData message must be an object")

// FieldError describes a message field that couldn't be parsed.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return e.Field + " parsing error"
	}
	return fmt.Sprintf("%s parsing error: %s", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Values are the bid terms extracted from the typed data message.
// Amounts are in the token's smallest unit.
type Values struct {
	AuctionName    string
	AuctionAddress string
	Amount         *big.Int
	BasePrice      *big.Int
	Tip            *big.Int
}

// Cost returns amount * (basePrice + tip).
func (v Values) Cost() *big.Int {
	unit := new(big.Int).Add(v.BasePrice, v.Tip)
	return unit.Mul(unit, v.Amount)
}

// ParseValues extracts the bid terms from the message. Every call parses again.
func (p Payload) ParseValues() (Values, error) {
	msg := p.TypedData.Message
	if msg == nil {
		return Values{}, ErrMessageNotObject
	}

	var (
		v   Values
		err error
	)
	if v.AuctionName, err = stringField(msg, "auctionName"); err != nil {
		return Values{}, err
	}
	if v.AuctionAddress, err = stringField(msg, "auctionAddress"); err != nil {
		return Values{}, err
	}
	if v.Amount, err = uint256Field(msg, "amount"); err != nil {
		return Values{}, err
	}
	if v.BasePrice, err = uint256Field(msg, "basePrice"); err != nil {
		return Values{}, err
	}
	if v.Tip, err = uint256Field(msg, "tip"); err != nil {
		return Values{}, err
	}
	return v, nil
}

func stringField(msg map[string]interface{}, name string) (string, error) {
	raw, ok := msg[name]
	if !ok {
		return "", &FieldError{Field: name}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &FieldError{Field: name}
	}
	return s, nil
}

func uint256Field(msg map[string]interface{}, name string) (*big.Int, error) {
	s, err := stringField(msg, name)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, &FieldError{Field: name, Err: errors.New("empty value")}
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		return nil, &FieldError{Field: name, Err: fmt.Errorf("invalid 256-bit unsigned integer %q", s)}
	}
	if n.Sign() < 0 {
		return nil, &FieldError{Field: name, Err: fmt.Errorf("negative value %q", s)}
	}
	return n, nil
}
