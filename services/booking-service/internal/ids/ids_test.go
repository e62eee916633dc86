package ids

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDRef(t *testing.T) {
	var g Generator = UUID{}
	ref := g.Ref("pay_")
	assert.Regexp(t, regexp.MustCompile(`^pay_[0-9a-f]{16}$`), ref)
	assert.NotEqual(t, ref, g.Ref("pay_"))
	assert.Len(t, g.NewID(), 36)
}
