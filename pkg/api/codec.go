package api

import (
	"encoding/json"
	"fmt"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/store"
)

// triggerEnvelope is the request body of a hook invocation.
type triggerEnvelope struct {
	Master bool           `json:"master,omitempty"`
	User   *envelopeUser  `json:"user,omitempty"`
	Object map[string]any `json:"object"`
}

// functionEnvelope is the request body of a cloud-function call.
type functionEnvelope struct {
	Master bool           `json:"master,omitempty"`
	User   *envelopeUser  `json:"user,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type envelopeUser struct {
	ID string `json:"objectId"`
}

func (e *triggerEnvelope) actorID() string {
	if e.User == nil {
		return ""
	}
	return e.User.ID
}

func (e *functionEnvelope) actorID() string {
	if e.User == nil {
		return ""
	}
	return e.User.ID
}

func (e *functionEnvelope) stringParam(name string) string {
	s, _ := e.Params[name].(string)
	return s
}

// decodeObject rebuilds a store object from the wire shape: objectId
// and ACL are lifted out, everything else stays a data field.
func decodeObject(class string, raw map[string]any) (*store.Object, error) {
	obj := store.NewObject(class)
	for k, v := range raw {
		switch k {
		case "objectId":
			obj.ID, _ = v.(string)
		case "ACL":
			if v == nil {
				continue
			}
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("invalid ACL payload: %w", err)
			}
			a := acl.New()
			if err := json.Unmarshal(data, a); err != nil {
				return nil, fmt.Errorf("invalid ACL payload: %w", err)
			}
			obj.SetACL(a)
		case "createdAt", "updatedAt":
		default:
			obj.Set(k, v)
		}
	}
	return obj, nil
}

// encodeObject renders the object back to the wire shape so the caller
// persists hook-side mutations.
func encodeObject(obj *store.Object) map[string]any {
	out := make(map[string]any, len(obj.Data)+2)
	for k, v := range obj.Data {
		out[k] = v
	}
	if obj.ID != "" {
		out["objectId"] = obj.ID
	}
	if obj.ObjectACL != nil {
		out["ACL"] = obj.ObjectACL
	}
	return out
}
