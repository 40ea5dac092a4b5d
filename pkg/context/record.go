package context

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Record is a stored context: a requirement, its domain and the history of
// everything appended to it since creation.
//
// Version always equals 1 + len(Updates) + len(Feedback).
type Record struct {
	ContextID       string          `json:"context_id"`
	RequirementText string          `json:"requirement_text"`
	Domain          string          `json:"domain"`
	Metadata        map[string]any  `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	Version         int             `json:"version"`
	Updates         []Update        `json:"updates"`
	Feedback        []FeedbackEntry `json:"feedback"`
}

// Update is one build call. Info is stored whole and never merged into
// earlier updates. Version is the record version before this update.
type Update struct {
	Timestamp time.Time      `json:"timestamp"`
	Info      map[string]any `json:"info"`
	Version   int            `json:"version"`
}

// FeedbackEntry is one piece of user feedback. Processed is reserved for a
// downstream consumer and is always false when written by the Store.
type FeedbackEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Feedback  map[string]any `json:"feedback"`
	Processed bool           `json:"processed"`
}

// Summary is the listing view of a Record.
type Summary struct {
	ContextID string    `json:"context_id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// Summary returns the listing view of r.
func (r Record) Summary() Summary {
	return Summary{
		ContextID: r.ContextID,
		Domain:    r.Domain,
		CreatedAt: r.CreatedAt,
		Version:   r.Version,
	}
}

// canonical returns rec as it reads back from a backend: every bag value
// decoded from JSON (numbers as float64, nested objects as map[string]any).
func canonical(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode context %s: %w", rec.ContextID, err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return Record{}, fmt.Errorf("decode context %s: %w", rec.ContextID, err)
	}
	return out, nil
}

// clone deep-copies r, including every map and slice reachable from the
// history entries, so the copy shares nothing with the cached record.
func (r Record) clone() Record {
	c := r
	c.Metadata = copyBag(r.Metadata)
	if r.Updates != nil {
		c.Updates = make([]Update, len(r.Updates))
		for i, u := range r.Updates {
			u.Info = copyBag(u.Info)
			c.Updates[i] = u
		}
	}
	if r.Feedback != nil {
		c.Feedback = make([]FeedbackEntry, len(r.Feedback))
		for i, f := range r.Feedback {
			f.Feedback = copyBag(f.Feedback)
			c.Feedback[i] = f
		}
	}
	return c
}

func copyBag(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyBag(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Fingerprint returns the hex MD5 digest of requirementText+domain. It makes
// ids traceable to their content; it is not an idempotency key.
func Fingerprint(requirementText, domain string) string {
	sum := md5.Sum([]byte(requirementText + domain))
	return hex.EncodeToString(sum[:])
}

// NewContextID builds "ctx_<fingerprint>_<unix seconds>".
func NewContextID(requirementText, domain string, at time.Time) string {
	return fmt.Sprintf("ctx_%s_%d", Fingerprint(requirementText, domain), at.Unix())
}
