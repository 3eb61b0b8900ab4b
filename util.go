package weakc

import "encoding/json"

// noCopy may be added to structs which must not be copied after the first
// use. See https://golang.org/issues/8005#issuecomment-190753527 for details.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

var (
	jsonMarshal func(v any) ([]byte, error)
)

// SetDefaultJSONMarshal sets the JSON serialization function used by
// MarshalJSON. If not set, the standard library is used by default.
func SetDefaultJSONMarshal(marshal func(v any) ([]byte, error)) {
	jsonMarshal = marshal
}

func marshalJSON(v any) ([]byte, error) {
	if jsonMarshal != nil {
		return jsonMarshal(v)
	}
	return json.Marshal(v)
}
