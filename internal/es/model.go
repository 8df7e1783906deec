package es

// Transform derives a model field's value from a compiled view state.
// It is a small tagged union: Identity (the raw state), Pluck (a single
// property), or MapFunc (an arbitrary derivation). A nil Transform means
// Identity.
type Transform interface {
	transform(state State) any
}

// ApplyTransform evaluates a transform against a view state.
func ApplyTransform(t Transform, state State) any {
	if t == nil {
		return state
	}
	return t.transform(state)
}

// Identity passes the view state through unchanged.
type Identity struct{}

func (Identity) transform(state State) any { return state }

// Pluck extracts a single named property from the view state.
type Pluck struct {
	Field string
}

func (p Pluck) transform(state State) any {
	if state == nil {
		return nil
	}
	return state[p.Field]
}

// MapFunc derives a value from the whole view state.
type MapFunc func(state State) any

func (f MapFunc) transform(state State) any { return f(state) }

// PayloadBuilder turns user-facing arguments into an action payload.
type PayloadBuilder func(args ...any) map[string]any

// ParamsBuilder turns user-facing arguments into query parameters.
type ParamsBuilder func(args ...any) any

// Binding is an opaque descriptor produced by a ModelMapContext and placed
// into the mapper's returned record. The model runner resolves bindings into
// live fields and callables.
type Binding interface {
	ModelBinding()
}

// ModelMapContext is handed to a model mapper to declare its bound fields.
type ModelMapContext interface {
	// MapAction binds a callable that builds a payload from its arguments,
	// executes the action with bounded optimistic retry, and refreshes the
	// model's eager fields on success.
	MapAction(actionType string, build PayloadBuilder) Binding

	// MapView binds a field eagerly populated from a view on every (re)build.
	// Pass a nil Transform for the raw view state.
	MapView(view *ViewDefinition, transform Transform) Binding

	// MapDeferredView binds an on-demand view read instead of an eager field.
	MapDeferredView(view *ViewDefinition, transform Transform) Binding

	// MapQuery binds an on-demand parameterized query read.
	MapQuery(query *QueryDefinition, build ParamsBuilder) Binding
}

// ModelMapper declares the shape of a model: a record of bound fields,
// actions, and queries. Non-binding values are carried through verbatim.
type ModelMapper func(ctx ModelMapContext) map[string]any

// ModelDefinition binds a mapper to its owning stack definition.
type ModelDefinition struct {
	StackDef *StackDefinition
	Mapper   ModelMapper
}
