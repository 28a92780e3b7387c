package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/locale"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/pointer"
	"github.com/and161185/sitecfg/internal/tree"
)

type localizedView struct {
	Key    string `json:"key"`
	Field  string `json:"field"`
	Locale string `json:"locale"`
	Value  string `json:"value"`
}

// localized serves ?field=<pointer>&locale=<code>[&default=<code>]: the
// string the field shows in locale, with legacy siblings such as "titleDe"
// folded in.
func (h *handlers) localized(c *gin.Context, doc *model.Document, field string) {
	loc := c.Query("locale")
	if loc == "" {
		h.writeError(c, "localized field", fmt.Errorf("%w: locale is required", errs.ErrValidation))
		return
	}
	def := c.DefaultQuery("default", h.DefaultLocale)

	parent, name, err := fieldParent(doc.Value, field)
	if err != nil {
		h.writeError(c, "localized field", err)
		return
	}
	v, err := locale.Field(parent, name, def, legacySuffixes(loc, def))
	if err != nil {
		h.writeError(c, "localized field", err)
		return
	}
	c.JSON(http.StatusOK, localizedView{Key: doc.Key, Field: field, Locale: loc, Value: locale.Read(v, loc, def)})
}

// fieldParent walks to the object holding the last segment of field. A
// missing parent yields nil, which reads as an absent field.
func fieldParent(root *tree.Node, field string) (*tree.Node, string, error) {
	segs, err := pointer.Split(field)
	if err != nil || len(segs) == 0 {
		return nil, "", fmt.Errorf("%w: field must be a JSON pointer to a member", errs.ErrValidation)
	}
	n := root
	for _, seg := range segs[:len(segs)-1] {
		if i, ok := pointer.ArrayIndex(seg); ok && n.Kind() == tree.KindArray {
			n = n.At(i)
			continue
		}
		n = n.Get(seg)
	}
	return n, segs[len(segs)-1], nil
}

// legacySuffixes maps "De" style sibling suffixes to the locales in play.
func legacySuffixes(locales ...string) map[string]string {
	out := make(map[string]string, len(locales))
	for _, l := range locales {
		if l == "" {
			continue
		}
		out[strings.ToUpper(l[:1])+l[1:]] = l
	}
	return out
}
