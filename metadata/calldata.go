package metadata

// CallData is the decoded representation of a transaction call: a
// variant keyed by pallet name whose payload is a variant keyed by
// call name carrying the call's arguments.
type CallData struct {
	Pallet string
	Call   CallVariant
}

// CallVariant is the inner variant of a decoded call
type CallVariant struct {
	Name string
	Args any
}

// NewCallData creates a decoded call value
func NewCallData(pallet, call string, args any) CallData {
	return CallData{
		Pallet: pallet,
		Call:   CallVariant{Name: call, Args: args},
	}
}

// Descriptor derives an unchecked transaction descriptor for the call.
// The result carries no structural checksum; it is intended for
// inspection and re-dispatch through a generated descriptor.
func (c CallData) Descriptor() Descriptor {
	return NewTxCallDescriptor(c.Pallet, c.Call.Name, nil)
}
