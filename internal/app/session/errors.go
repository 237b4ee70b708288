package session

import "fmt"

// ConnectionError reports a transport-level failure before the session
// reached the authenticated state.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MailboxError reports a non-OK response to a mailbox selection.
type MailboxError struct {
	Mailbox    string
	Diagnostic string
	Err        error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("selecting %q: %s", e.Mailbox, e.Diagnostic)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// FetchError reports a failed fetch of message content or metadata.
type FetchError struct {
	Seq        uint32
	Diagnostic string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching message %d: %s", e.Seq, e.Diagnostic)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CopyError reports a failed server-side copy.
type CopyError struct {
	Mailbox    string
	Diagnostic string
	Err        error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying to %q: %s", e.Mailbox, e.Diagnostic)
}

func (e *CopyError) Unwrap() error { return e.Err }

// AppendError reports a failed message upload.
type AppendError struct {
	Mailbox    string
	Diagnostic string
	Err        error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("appending to %q: %s", e.Mailbox, e.Diagnostic)
}

func (e *AppendError) Unwrap() error { return e.Err }

// CreateError reports a failed mailbox creation. Whether creating an
// already-existing mailbox fails is up to the server; the response is
// passed through unchanged either way.
type CreateError struct {
	Mailbox    string
	Diagnostic string
	Err        error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("creating %q: %s", e.Mailbox, e.Diagnostic)
}

func (e *CreateError) Unwrap() error { return e.Err }

// ParseError reports a response that arrived without an expected item,
// e.g. a fetch that returned no UID.
type ParseError struct {
	What string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("server response carried no %s", e.What)
}
