// Package e2 provides the representation bookkeeping and the equivariant
// operators used by the rotation-invariant backbone.
//
// A FieldType declares, for a tensor's channel dimension, which
// representation of the cyclic rotation group C_N each block of channels
// carries: a trivial field is one channel that rotations leave unchanged,
// a regular field is N channels that rotations cyclically permute. Every
// operator is bound at construction to a declared input and output type
// and rejects tensors of any other type.
//
// Equivariant operators compute their effective weights from learnable
// base parameters on every call. Export folds that structure into plain
// nn layers with fixed weights.
package e2
