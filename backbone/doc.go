// Package backbone implements a rotation-invariant ResNet + FPN feature
// extractor producing descriptors at 1/8 and 1/2 of the input resolution.
//
// A Backbone starts trainable: every tensor flowing through it carries an
// e2.FieldType and every operator checks the type it is fed. Export
// converts the whole graph, once and irreversibly, into plain layers with
// baked weights; from then on Forward works on plain tensors and any
// attempt to train fails with ErrStateViolation.
//
// A Backbone is not safe for concurrent use while Export runs. Forward
// passes in training mode update batch-norm statistics and must be
// serialized by the caller as well.
package backbone
