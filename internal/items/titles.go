package items

// Pseudo section codes emitted by the splitter.
const (
	Preamble     = "PREAMBLE"
	FullDocument = "FULL_DOCUMENT"
)

var titles = map[string]string{
	// Part I
	"Item 1":  "Business",
	"Item 1A": "Risk Factors",
	"Item 1B": "Unresolved Staff Comments",
	"Item 1C": "Cybersecurity",
	"Item 2":  "Properties",
	"Item 3":  "Legal Proceedings",
	"Item 4":  "Mine Safety Disclosures",

	// Part II
	"Item 5":  "Market for Registrant’s Common Equity, Related Stockholder Matters and Issuer Purchases of Equity Securities",
	"Item 6":  "Reserved",
	"Item 7":  "Management’s Discussion and Analysis of Financial Condition and Results of Operations",
	"Item 7A": "Quantitative and Qualitative Disclosures About Market Risk",
	"Item 8":  "Financial Statements and Supplementary Data",
	"Item 9":  "Changes in and Disagreements with Accountants on Accounting and Financial Disclosure",
	"Item 9A": "Controls and Procedures",
	"Item 9B": "Other Information",
	"Item 9C": "Disclosure Regarding Foreign Jurisdictions that Prevent Inspections",

	// Part III
	"Item 10": "Directors, Executive Officers and Corporate Governance",
	"Item 11": "Executive Compensation",
	"Item 12": "Security Ownership of Certain Beneficial Owners and Management and Related Stockholder Matters",
	"Item 13": "Certain Relationships and Related Transactions, and Director Independence",
	"Item 14": "Principal Accountant Fees and Services",

	// Part IV
	"Item 15": "Exhibits, Financial Statement Schedules",
	"Item 16": "Form 10-K Summary",
}

// Title returns the standard 10-K title for a canonical item code.
func Title(code string) (string, bool) {
	t, ok := titles[code]
	return t, ok
}
