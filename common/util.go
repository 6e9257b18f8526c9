package common

import (
	"encoding"
	"fmt"
	"net/netip"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// WeakDecodeMap decodes a loosely typed config map into output. String values
// are converted through encoding.TextUnmarshaler when the target supports it.
func WeakDecodeMap(input, output any) error {
	config := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: func(
			f reflect.Type,
			t reflect.Type,
			data interface{}) (interface{}, error) {
			if !reflect.PointerTo(t).Implements(textUnmarshalerType) {
				return data, nil
			}

			str, ok := data.(string)
			if !ok {
				return data, nil
			}

			v := reflect.New(t)
			if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(str)); err != nil {
				return nil, err
			}

			return v.Elem().Interface(), nil
		},
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

// DetectNormalizeAddr strips IPv6 brackets and reports whether addr is an IP literal.
func DetectNormalizeAddr(addr string) (norm string, isIP bool) {
	if _, err := netip.ParseAddr(addr); err == nil {
		return addr, true
	}

	if len(addr) > 2 && addr[0] == '[' && addr[len(addr)-1] == ']' {
		addrStrip := addr[1 : len(addr)-1]
		if ip, err := netip.ParseAddr(addrStrip); err == nil {
			if ip.Is6() {
				return addrStrip, true
			}
		}
	}

	return addr, false
}

// CIDR is an IPv4 prefix read from config text.
type CIDR struct {
	netip.Prefix
}

func (c *CIDR) UnmarshalText(b []byte) error {
	p, err := netip.ParsePrefix(string(b))
	if err != nil {
		return err
	}

	if !p.Addr().Is4() {
		return fmt.Errorf("only IPv4 prefixes are supported, got %s", p)
	}

	c.Prefix = p.Masked()
	return nil
}

func (c CIDR) MarshalText() ([]byte, error) {
	return []byte(c.Prefix.String()), nil
}
