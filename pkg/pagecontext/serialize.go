package pagecontext

import (
	"encoding/json"
	"sort"

	"github.com/vango-dev/pagerender/internal/errors"
)

// internalClientKeys are serialized whenever they are set.
var internalClientKeys = []string{"abortReason", "abortStatusCode", "is404"}

// ClientKeys returns the keys SerializeForClient writes, in order.
func (pc *PageContext) ClientKeys() []string {
	seen := map[string]bool{"_pageId": true}
	keys := []string{"_pageId"}
	add := func(k string) {
		if seen[k] {
			return
		}
		if _, ok := pc.Lookup(k); !ok {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	passToClient := append([]string(nil), pc.PassToClient...)
	sort.Strings(passToClient)
	for _, k := range passToClient {
		add(k)
	}
	for _, k := range internalClientKeys {
		add(k)
	}
	return keys
}

// SerializeForClient encodes the passToClient subset of pc as JSON, along
// with the page id and the abort fields the client router needs.
func (pc *PageContext) SerializeForClient() (string, error) {
	out := map[string]json.RawMessage{}
	for _, k := range pc.ClientKeys() {
		v, _ := pc.Lookup(k)
		if k == "_pageId" {
			v = pc.PageID
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", errors.New(errors.CodeUnserializable).
				WithDetailf("pageContext[%q] cannot be serialized: %v", k, err).
				WithSuggestion("Remove " + k + " from passToClient or make its value JSON-serializable").
				Wrap(err)
		}
		out[k] = b
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", errors.FromError(err, errors.CodeUnserializable)
	}
	return string(b), nil
}

// ParseSerialized decodes a payload produced by SerializeForClient.
func ParseSerialized(data string) (Addendum, error) {
	var a Addendum
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, err
	}
	return a, nil
}

// MergeFromNetwork merges a payload received from the server, dropping the
// keys that would override built-ins other than the page id.
func (pc *PageContext) MergeFromNetwork(a Addendum) {
	if id, ok := a["_pageId"].(string); ok {
		pc.PageID = id
	}
	pc.Merge(StripBuiltIns(a))
}
