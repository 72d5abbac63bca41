package admission

import "errors"

// Kind classifies why a bid wasn't admitted.
type Kind int

const (
	// MalformedRequest indicates the body is missing or isn't a payload.
	MalformedRequest Kind = iota + 1
	// SchemaValidation indicates the typed data isn't a Pikapool bid.
	SchemaValidation
	// FieldParse indicates an address or number couldn't be parsed.
	FieldParse
	// SignatureInvalid indicates the signature couldn't be decoded or checked.
	SignatureInvalid
	// SignatureMismatch indicates the signature wasn't produced by the sender.
	SignatureMismatch
	// BusinessRuleViolation indicates the bid doesn't match the auction.
	BusinessRuleViolation
	// Unauthorized indicates the signer can't pay for the bid.
	Unauthorized
	// Infrastructure indicates a cache, store or connection failure.
	Infrastructure
)

func (k Kind) String() string {
	switch k {
	case MalformedRequest:
		return "malformed-request"
	case SchemaValidation:
		return "schema-validation"
	case FieldParse:
		return "field-parse"
	case SignatureInvalid:
		return "signature-invalid"
	case SignatureMismatch:
		return "signature-mismatch"
	case BusinessRuleViolation:
		return "business-rule-violation"
	case Unauthorized:
		return "unauthorized"
	case Infrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is a rejected admission. Msg is safe to show to the client.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors that aren't an *Error are Infrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Infrastructure
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func infraError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(Infrastructure, err.Error(), err)
}
