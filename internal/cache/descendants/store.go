package descendants

import (
	"context"
	"fmt"
	"strings"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

// Store persists resolved descendant lists keyed by (coding system,
// version, root code). An entry with an empty list records that the root
// has no descendants.
type Store interface {
	// Get returns the entries found for codes. Codes without an entry are
	// absent from the result.
	Get(ctx context.Context, codingSystem, version string, codes []string) (map[string][]engine.Code, error)
	// Put upserts one entry and makes it the newest.
	Put(ctx context.Context, codingSystem, version, code string, descendants []engine.Code) error
	// Evict removes the n oldest entries by write order and reports how many
	// were removed.
	Evict(ctx context.Context, n int) (int, error)
	Len(ctx context.Context) (int, error)
}

const (
	fieldSep  = '\x1f'
	recordSep = '\x1e'
	escape    = '\x1b'
)

var separatorEscaper = strings.NewReplacer(
	string(escape), string(escape)+string(escape),
	string(fieldSep), string(escape)+"u",
	string(recordSep), string(escape)+"r",
)

// encode flattens descendants into one delimited string: records separated
// by RS, each record "id US term". ESC, US and RS inside a value are
// escaped as ESC ESC, ESC u and ESC r.
func encode(codes []engine.Code) string {
	var b strings.Builder
	for i, c := range codes {
		if i > 0 {
			b.WriteByte(recordSep)
		}
		b.WriteString(separatorEscaper.Replace(c.ID))
		b.WriteByte(fieldSep)
		b.WriteString(separatorEscaper.Replace(c.Term))
	}
	return b.String()
}

func decode(raw string) []engine.Code {
	out := []engine.Code{}
	if raw == "" {
		return out
	}
	var (
		field  strings.Builder
		id     string
		inTerm bool
	)
	flush := func() {
		if inTerm {
			if id != "" {
				out = append(out, engine.NewCode(id, field.String()))
			}
		} else if field.Len() > 0 {
			out = append(out, engine.NewCode(field.String(), ""))
		}
		field.Reset()
		id, inTerm = "", false
	}
	for i := 0; i < len(raw); i++ {
		switch ch := raw[i]; ch {
		case escape:
			if i+1 < len(raw) {
				i++
				switch raw[i] {
				case 'u':
					field.WriteByte(fieldSep)
				case 'r':
					field.WriteByte(recordSep)
				default:
					field.WriteByte(raw[i])
				}
			}
		case fieldSep:
			if !inTerm {
				id, inTerm = field.String(), true
				field.Reset()
			} else {
				field.WriteByte(ch)
			}
		case recordSep:
			flush()
		default:
			field.WriteByte(ch)
		}
	}
	flush()
	return out
}

// validateKey rejects blank keys. Keys are stored as given; callers
// normalize them.
func validateKey(codingSystem, code string) error {
	if strings.TrimSpace(codingSystem) == "" {
		return fmt.Errorf("coding_system is required")
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}

func validateEvict(n int) error {
	if n < 0 {
		return fmt.Errorf("evict count must not be negative, got %d", n)
	}
	return nil
}
