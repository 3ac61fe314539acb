package repo

import (
	"net/mail"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// Revision is one commit of a project's history.
type Revision struct {
	ID        string   `json:"id"`
	Parents   []string `json:"parents,omitempty"`
	Message   string   `json:"message"`
	Author    string   `json:"author"`
	Email     string   `json:"email,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Time parses the revision timestamp.
func (r Revision) Time() time.Time {
	t, _ := time.Parse(time.RFC3339, r.Timestamp)
	return t
}

func revisionOf(c *object.Commit) Revision {
	rev := Revision{
		ID:        c.Hash.String(),
		Message:   c.Message,
		Author:    c.Author.Name,
		Email:     c.Author.Email,
		Timestamp: c.Author.When.UTC().Format(time.RFC3339),
	}
	for _, p := range c.ParentHashes {
		rev.Parents = append(rev.Parents, p.String())
	}
	return rev
}

// IDs returns the ids of revs in order.
func IDs(revs []Revision) []string {
	out := make([]string, len(revs))
	for i, r := range revs {
		out[i] = r.ID
	}
	return out
}

// signature parses "Name <email>" or a bare name. A bare name gets
// fallbackEmail.
func signature(author, fallbackName, fallbackEmail string, when time.Time) object.Signature {
	sig := object.Signature{Name: strings.TrimSpace(author), Email: fallbackEmail, When: when}
	if addr, err := mail.ParseAddress(author); err == nil {
		sig.Name, sig.Email = addr.Name, addr.Address
		if sig.Name == "" {
			sig.Name = addr.Address
		}
	}
	if sig.Name == "" {
		sig.Name = fallbackName
	}
	return sig
}
