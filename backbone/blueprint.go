package backbone

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/openfluke/e2fpn/e2"
)

// Blueprint is the structural description of a backbone: every operator
// in execution order with its boundary types and parameter count.
type Blueprint struct {
	State       string           `json:"state"`
	GroupOrder  int              `json:"group_order"`
	Reduction   int              `json:"reduction"`
	TotalLayers int              `json:"total_layers"`
	TotalParams int              `json:"total_parameters"`
	Layers      []LayerBlueprint `json:"layers"`
}

// LayerBlueprint describes one operator
type LayerBlueprint struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Kernel      int    `json:"kernel,omitempty"`
	Stride      int    `json:"stride,omitempty"`
	Factor      int    `json:"factor,omitempty"`
	InType      string `json:"in_type"`
	OutType     string `json:"out_type"`
	InChannels  int    `json:"in_channels"`
	OutChannels int    `json:"out_channels"`
	Parameters  int    `json:"parameters"`
}

// Blueprint extracts the structure of the current network. Exported
// backbones report zero learnable parameters.
func (b *Backbone) Blueprint() Blueprint {
	bp := Blueprint{
		State:      b.State().String(),
		GroupOrder: b.cfg.NbrRotations,
		Reduction:  b.types.Reduction,
	}
	if b.baked != nil {
		b.baked.walk(func(path string, o op[plain]) { bp.add(path, o) })
	} else {
		b.equivariant.walk(func(path string, o op[geometric]) { bp.add(path, o) })
	}
	return bp
}

type describer interface {
	InType() e2.FieldType
	OutType() e2.FieldType
	Spec() e2.OpSpec
}

func (bp *Blueprint) add(path string, o describer) {
	spec := o.Spec()
	l := LayerBlueprint{
		Path:        path,
		Type:        spec.Kind.String(),
		InType:      o.InType().String(),
		OutType:     o.OutType().String(),
		InChannels:  o.InType().Size(),
		OutChannels: o.OutType().Size(),
		Parameters:  spec.Params,
	}
	switch spec.Kind {
	case e2.KindConv:
		l.Kernel, l.Stride = spec.Kernel, spec.Stride
	case e2.KindUpsample:
		l.Factor = spec.Factor
	}
	bp.Layers = append(bp.Layers, l)
	bp.TotalLayers++
	bp.TotalParams += spec.Params
}

// String renders the blueprint as a fixed-width table.
func (bp Blueprint) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "state=%s group=C%d reduction=%d layers=%d params=%d\n",
		bp.State, bp.GroupOrder, bp.Reduction, bp.TotalLayers, bp.TotalParams)

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPE\tGEOM\tIN\tOUT\tPARAMS")
	for _, l := range bp.Layers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", l.Path, l.Type, l.geometry(), l.InType, l.OutType, l.Parameters)
	}
	tw.Flush()
	return sb.String()
}

func (l LayerBlueprint) geometry() string {
	switch {
	case l.Kernel > 0:
		return fmt.Sprintf("%dx%d/%d", l.Kernel, l.Kernel, l.Stride)
	case l.Factor > 0:
		return fmt.Sprintf("x%d", l.Factor)
	default:
		return "-"
	}
}
