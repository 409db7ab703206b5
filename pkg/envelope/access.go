package envelope

// BodyString returns body[key] as a string, or "" if absent/wrong type.
func BodyString(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}

// BodyInt64 returns body[key] as an int64, tolerating the float64 shape
// produced by encoding/json decoding.
func BodyInt64(body map[string]any, key string) (int64, bool) {
	return asInt64(body[key])
}

// BodyInt returns body[key] as an int.
func BodyInt(body map[string]any, key string) (int, bool) {
	v, ok := asInt64(body[key])
	return int(v), ok
}

// BodyBool returns body[key] as a bool.
func BodyBool(body map[string]any, key string) bool {
	v, _ := body[key].(bool)
	return v
}
