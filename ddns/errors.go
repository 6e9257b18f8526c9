package ddns

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Use errors.Is on a RecordLookupError or RecordUpdateError.
var (
	ErrAuth           = errors.New("provider rejected credentials")
	ErrRecordNotFound = errors.New("record does not exist")
	ErrAPI            = errors.New("provider reported an error")
	ErrTransport      = errors.New("provider unreachable")
)

type RecordLookupError struct {
	Name     string
	Kind     error
	Messages []string
	Err      error
}

func (e *RecordLookupError) Error() string {
	return describe("lookup of "+e.Name, e.Kind, e.Messages, e.Err)
}

func (e *RecordLookupError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

type RecordUpdateError struct {
	Name     string
	ID       string
	Content  string
	Kind     error
	Messages []string
	Err      error
}

func (e *RecordUpdateError) Error() string {
	return describe(fmt.Sprintf("update of %s (%s) to %s", e.Name, e.ID, e.Content), e.Kind, e.Messages, e.Err)
}

func (e *RecordUpdateError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

func unwrap(kind, err error) []error {
	if err == nil {
		return []error{kind}
	}
	return []error{kind, err}
}

func describe(op string, kind error, messages []string, err error) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteString(" failed: ")
	b.WriteString(kind.Error())
	if len(messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(messages, "; "))
	} else if err != nil {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}
