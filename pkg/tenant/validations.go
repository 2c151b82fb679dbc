package tenant

// RefValidations is the validations payload of a Reference-typed model
// field: an allow-list of target model nameIds. The payload arrives as
// free-form JSON from the dashboard; anything not matching the
// expected shape is treated as absent.
type RefValidations struct {
	raw    map[string]any
	models map[string]any
	list   []any
}

// ReferenceValidations parses a field's validations payload. Returns
// nil when the payload is missing, inactive or malformed; callers
// skip such fields silently.
func ReferenceValidations(f ModelField) *RefValidations {
	raw, ok := f.Get(FieldValidations).(map[string]any)
	if !ok {
		return nil
	}
	models, ok := raw["models"].(map[string]any)
	if !ok {
		return nil
	}
	if active, _ := models["active"].(bool); !active {
		return nil
	}
	list, ok := models["modelsList"].([]any)
	if !ok {
		return nil
	}
	return &RefValidations{raw: raw, models: models, list: list}
}

// Remove deletes a nameId from the allow-list. Reports whether the
// list changed.
func (v *RefValidations) Remove(nameID string) bool {
	for i, entry := range v.list {
		if s, ok := entry.(string); ok && s == nameID {
			v.list = append(v.list[:i], v.list[i+1:]...)
			v.models["modelsList"] = v.list
			return true
		}
	}
	return false
}

// Contains reports whether a nameId is on the allow-list.
func (v *RefValidations) Contains(nameID string) bool {
	for _, entry := range v.list {
		if s, ok := entry.(string); ok && s == nameID {
			return true
		}
	}
	return false
}

// Payload returns the (possibly mutated) payload for persisting back
// onto the field.
func (v *RefValidations) Payload() map[string]any { return v.raw }
