package auth

import "strings"

// Value is a single parameter value. Flag is set for a bare token
// without '=', in which case String is empty.
type Value struct {
	String string
	Flag   bool
}

// Parameters is an ordered list of Passport parameters as found in
// header values like "da-status=failed,srealm=Passport.NET,prompt".
// Repeated keys keep all their values in encounter order.
type Parameters struct {
	keys   []string
	values map[string][]Value
}

// ParseParameters splits s on ',' and every element on its first '='.
func ParseParameters(s string) Parameters {
	p := Parameters{values: make(map[string][]Value)}
	for _, element := range strings.Split(s, ",") {
		var key string
		var value Value
		if before, after, found := strings.Cut(element, "="); found {
			key = strings.TrimSpace(before)
			value.String = strings.TrimSpace(after)
		} else {
			value.Flag = true
		}
		if key == "" {
			key = element
		}
		if _, ok := p.values[key]; !ok {
			p.keys = append(p.keys, key)
		}
		p.values[key] = append(p.values[key], value)
	}
	return p
}

// Keys returns the distinct keys in order of first appearance.
func (p Parameters) Keys() []string { return p.keys }

// Len returns the number of distinct keys.
func (p Parameters) Len() int { return len(p.keys) }

// Lookup returns all values of key.
func (p Parameters) Lookup(key string) ([]Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p Parameters) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns the first value of key, or "" if the key is absent or a flag.
func (p Parameters) Get(key string) string {
	if v := p.values[key]; len(v) > 0 {
		return v[0].String
	}
	return ""
}

// Token renders key the way it would appear in a message: "key=value" for a
// single string value and "key" otherwise.
func (p Parameters) Token(key string) string {
	if v := p.values[key]; len(v) == 1 && !v[0].Flag {
		return key + "=" + v[0].String
	}
	return key
}
