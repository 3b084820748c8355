package cli

import (
	"io"
	"os"
	"strings"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
)

// readArg resolves a JSON argument: "-" reads stdin, "@path" reads a file,
// anything else is the document itself.
func readArg(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errs.Wrap(errs.CodeValidation, err, "read stdin")
		}
		return data, nil
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, errs.Wrap(errs.CodeNotFound, err, "read %s", arg[1:])
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

// decodeCandidate parses one event object through candidate validation.
func decodeCandidate(data []byte) (*event.Event, error) {
	v, err := event.DecodeGeneric(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.New(errs.CodeValidation, "expected a JSON object")
	}
	return event.DecodeCandidate(m)
}

// decodePatch parses a modify patch. Numbers stay json.Number so their
// text survives into the stored event.
func decodePatch(data []byte) (map[string]any, error) {
	v, err := event.DecodeGeneric(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.New(errs.CodeValidation, "patch must be a JSON object")
	}
	return m, nil
}
