package cel

// FilterExpressionExamples are admission expressions over a transformed document.
var FilterExpressionExamples = map[string]string{
	"has_nino":          `has(document.nino) && document.nino != ""`,
	"open_contracts":    `!has(document.closed_date) || document.closed_date == null`,
	"single_topic":      `topic == "db.core.claimant"`,
	"skip_test_records": `!id.startsWith("test-")`,
	"inserts_only":      `action == "INSERT"`,
	"has_people":        `has(document.citizen_ids) && size(document.citizen_ids) > 0`,
}
