package world

// Payload - сериализованные данные блока или сущности (инвентарь, здоровье, пассажиры...)
type Payload map[string]interface{}

// Clone создаёт глубокую копию вложенных карт и срезов
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Payload(t).Clone())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []Payload:
		out := make([]Payload, len(t))
		for i, item := range t {
			out[i] = item.Clone()
		}
		return out
	default:
		return v
	}
}
