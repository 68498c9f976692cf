package object

import (
	"encoding/json"
	"fmt"
)

// envelope is the on-the-wire tagged-union form: a "kind" discriminator
// alongside the variant payload nested under "data".
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal renders any Object as its tagged-union JSON form. This is what
// the file sink writes, one per line, and what the file source reads back.
func Marshal(o Object) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: o.Kind(), Data: data})
}

// Unmarshal parses a tagged-union JSON document back into the concrete
// Object variant named by its "kind" field.
func Unmarshal(raw []byte) (Object, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var obj Object
	switch env.Kind {
	case KindMock:
		obj = &Mock{}
	case KindKline:
		obj = &Kline{}
	case KindTrade:
		obj = &Trade{}
	case KindOrderbookSnapshot:
		obj = &OrderbookSnapshot{}
	case KindOrderbookUpdate:
		obj = &OrderbookUpdate{}
	case KindNewOrder:
		obj = &NewOrder{}
	default:
		return nil, fmt.Errorf("object: unknown kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, obj); err != nil {
		return nil, err
	}
	return obj, nil
}
