package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire form: the kind letter followed by '|'-separated records.
//
//	D|B100:6|A101      bid 100 now 6, ask 101 removed
//	S|B100:6|A102:3    full book
const sep = '|'

// Marshal renders m in wire form.
func (m Message) Marshal() []byte {
	buf := make([]byte, 0, 1+len(m.Records)*12)
	buf = append(buf, byte(m.Kind))
	for _, r := range m.Records {
		buf = append(buf, sep, byte(r.Tag))
		buf = strconv.AppendInt(buf, r.Price, 10)
		if !r.Remove {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, r.Qty, 10)
		}
	}
	return buf
}

func (m Message) String() string { return string(m.Marshal()) }

// Unmarshal parses the wire form produced by Marshal.
func Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	parts := bytes.Split(b, []byte{sep})
	head := parts[0]
	if len(head) != 1 || (Kind(head[0]) != KindDelta && Kind(head[0]) != KindSnapshot) {
		return Message{}, fmt.Errorf("%w: bad kind %q", ErrMalformed, head)
	}
	m := Message{Kind: Kind(head[0])}
	if len(parts) > 1 {
		m.Records = make([]Record, 0, len(parts)-1)
	}
	for _, p := range parts[1:] {
		r, err := parseRecord(p)
		if err != nil {
			return Message{}, err
		}
		if r.Remove && m.Kind == KindSnapshot {
			return Message{}, fmt.Errorf("%w: removal %q in snapshot", ErrMalformed, p)
		}
		m.Records = append(m.Records, r)
	}
	return m, nil
}

func parseRecord(p []byte) (Record, error) {
	if len(p) < 2 || !Tag(p[0]).valid() {
		return Record{}, fmt.Errorf("%w: bad record %q", ErrMalformed, p)
	}
	r := Record{Tag: Tag(p[0])}
	body := p[1:]
	priceField, qtyField, hasQty := bytes.Cut(body, []byte{':'})

	price, err := strconv.ParseInt(string(priceField), 10, 64)
	if err != nil || price < 0 {
		return Record{}, fmt.Errorf("%w: bad price in %q", ErrMalformed, p)
	}
	r.Price = price

	if !hasQty {
		r.Remove = true
		return r, nil
	}
	qty, err := strconv.ParseInt(string(qtyField), 10, 64)
	if err != nil || qty <= 0 {
		return Record{}, fmt.Errorf("%w: bad quantity in %q", ErrMalformed, p)
	}
	r.Qty = qty
	return r, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m.Marshal()))
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	out, err := Unmarshal([]byte(s))
	if err != nil {
		return err
	}
	*m = out
	return nil
}
