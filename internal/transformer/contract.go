package transformer

import "context"

type Contract struct{}

func (Contract) Transform(_ context.Context, doc []byte) ([]byte, error) {
	src, err := parseObject(doc)
	if err != nil {
		return nil, err
	}

	contractID, err := requiredID(src, "contractId")
	if err != nil {
		return nil, err
	}

	citizenIDs := []string{}
	for _, p := range src.Get("people").Array() {
		citizenIDs = append(citizenIDs, p.String())
	}

	return render(map[string]interface{}{
		"contract_id":        contractID,
		"citizen_ids":        citizenIDs,
		"assessment_periods": optional(src, "assessmentPeriods"),
		"start_date":         optional(src, "startDate"),
		"closed_date":        optional(src, "closedDate"),
		"declared_date":      optional(src, "declaredDate"),
		"entitlement_date":   optional(src, "entitlementDate"),
	})
}
