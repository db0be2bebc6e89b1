package transformer

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Claimant emits the claimant row. A configured salt replaces the nino with
// its salted SHA-512 digest; blank ninos stay blank so the filter can drop them.
type Claimant struct {
	salt string
}

func NewClaimant(salt string) *Claimant {
	return &Claimant{salt: salt}
}

func (c *Claimant) Transform(_ context.Context, doc []byte) ([]byte, error) {
	src, err := parseObject(doc)
	if err != nil {
		return nil, err
	}

	citizenID, err := requiredID(src, "citizenId")
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"citizen_id": citizenID,
		"person_id":  optional(src, "personId"),
	}

	if nino := src.Get("nino"); nino.Exists() {
		out["nino"] = c.hash(nino.String())
	}

	return render(out)
}

func (c *Claimant) hash(nino string) string {
	nino = strings.TrimSpace(nino)
	if nino == "" || c.salt == "" {
		return nino
	}
	sum := sha512.Sum512([]byte(nino + c.salt))
	return hex.EncodeToString(sum[:])
}
