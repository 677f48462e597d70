package errors

// Kind is a machine-readable failure category surfaced to callers.
type Kind string

const (
	KindUnknown              Kind = "UNKNOWN"
	KindProviderUnavailable  Kind = "PROVIDER_UNAVAILABLE"
	KindUserRejected         Kind = "USER_REJECTED"
	KindAuthorizationPending Kind = "AUTHORIZATION_PENDING"
	KindMetadataUnavailable  Kind = "METADATA_UNAVAILABLE"
	KindInvalidInput         Kind = "INVALID_INPUT"
	KindNoCampaigns          Kind = "NO_CAMPAIGNS_AVAILABLE"
	KindTransactionFailed    Kind = "TRANSACTION_FAILED"
	KindBusy                 Kind = "BUSY"
	KindCanceled             Kind = "CANCELED"
)

// Recoverable reports whether a retry of the same operation can succeed
// without any change besides user action.
func (k Kind) Recoverable() bool {
	switch k {
	case KindUserRejected, KindAuthorizationPending, KindBusy, KindInvalidInput, KindCanceled:
		return true
	default:
		return false
	}
}

type kindError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *kindError) Error() string {
	switch {
	case e.cause == nil:
		return e.msg
	case e.msg == "":
		return e.cause.Error()
	default:
		return e.msg + ": " + e.cause.Error()
	}
}

func (e *kindError) Unwrap() error { return e.cause }

// Cause keeps github.com/pkg/errors Cause() walking through kinded errors.
func (e *kindError) Cause() error { return e.cause }

func (e *kindError) Kind() Kind { return e.kind }

// NewKind returns an error of the given kind with a stack attached.
func NewKind(kind Kind, msg string) error {
	return WithStack(&kindError{kind: kind, msg: msg})
}

// WithKind classifies cause as kind, keeping cause reachable through Unwrap.
// A nil cause yields a plain kinded error carrying msg.
func WithKind(kind Kind, cause error, msg string) error {
	return WithStack(&kindError{kind: kind, msg: msg, cause: cause})
}

// KindOf returns the outermost kind found in the chain of err.
// Errors that were never classified are KindUnknown; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k *kindError
	if As(err, &k) {
		return k.kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify returns err unchanged when it already carries a kind, and wraps it
// as KindUnknown otherwise.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var k *kindError
	if As(err, &k) {
		return err
	}
	return WithKind(KindUnknown, err, msg)
}
