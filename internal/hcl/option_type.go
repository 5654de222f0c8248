package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/zclconf/go-cty/cty"
)

// optionType reads the type constraint of a plugin option. An omitted type
// accepts any value. WITH clauses only carry literals, so an option is a
// primitive or a list, set or map of one primitive type.
func optionType(expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.DynamicPseudoType, diags
	}

	switch {
	case ty == cty.DynamicPseudoType, ty.IsPrimitiveType():
		return ty, nil
	case ty.IsListType(), ty.IsSetType(), ty.IsMapType():
		if elem := ty.ElementType(); !elem.IsPrimitiveType() {
			return cty.DynamicPseudoType, fmt.Errorf("%s: element type must be string, number or bool, got %s", typeexpr.TypeString(ty), typeexpr.TypeString(elem))
		}
		return ty, nil
	default:
		return cty.DynamicPseudoType, fmt.Errorf("%s cannot be written in a WITH clause", typeexpr.TypeString(ty))
	}
}
