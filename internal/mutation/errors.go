package mutation

import (
	"errors"
	"fmt"
)

type RejectionKind int

const (
	// Bad slot index, unknown item, unknown mutation type, malformed payload.
	RejectValidation RejectionKind = iota
	// Lock or unlock attempted by someone other than the host.
	RejectAuthorization
	// Menu edit attempted while the room is locked.
	RejectLocked
)

func (k RejectionKind) String() string {
	switch k {
	case RejectValidation:
		return "validation"
	case RejectAuthorization:
		return "authorization"
	case RejectLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Rejection is a business-rule refusal. The document is left unchanged and
// only the connection that sent the mutation hears about it.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

var (
	ErrUnsupported = &Rejection{Kind: RejectValidation, Message: "unsupported mutation"}
	ErrLocked      = &Rejection{Kind: RejectLocked, Message: "room is locked"}
	ErrOnlyHost    = &Rejection{Kind: RejectAuthorization, Message: "only host can lock or unlock the room"}
)

func rejectf(format string, args ...any) *Rejection {
	return &Rejection{Kind: RejectValidation, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
