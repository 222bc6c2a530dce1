package llm

// NonInformativeToken is the single-token answer the vision prompt demands
// for logos and decoration.
const NonInformativeToken = "NON_INFORMATIVE_IMAGE"

// SECImagePrompt asks the vision model to either reject an image as
// decorative or describe it in retrieval-friendly terms.
const SECImagePrompt = `You are analyzing an image extracted from a U.S. SEC filing (such as a Form 10-K or 10-Q).

STEP 1 - CLASSIFICATION (MANDATORY):
Determine whether the image contains substantive business, financial, or legal information.

If the image is ANY of the following:
- a company logo (e.g., Apple logo),
- branding or trademark imagery,
- a decorative or stylistic graphic,
- a cover-page design element,
- an icon or symbol without data,

you MUST respond a SINGLE TOKEN with exactly:
` + NonInformativeToken + `

STEP 2 - DESCRIPTION (ONLY IF INFORMATIVE):
If and only if the image contains substantive information (such as charts, tables, diagrams, or scanned disclosures),
describe the image in clear, factual language suitable for regulatory and financial analysis.

For informative images, include:
- Visible text, headings, labels, and captions (verbatim if possible)
- Chart or table type and structure
- Key financial figures, dates, units, and trends shown
- The specific business, financial, or legal topic represented

Do NOT:
- Describe logos or branding
- Speculate or interpret beyond what is shown
- Add opinions or narrative commentary

STEP 3 - OUTPUT:
Output a single concise paragraph suitable for search and retrieval.`

// AnswerPrompt grounds an answer in retrieved excerpts. Fill with the
// question and the rendered context.
const AnswerPrompt = `You are a professional financial analyst answering questions about U.S. SEC filings.

Answer the question using ONLY the excerpts provided below.
Do NOT use prior knowledge.
Do NOT speculate or infer beyond the text.
If the information is not explicitly stated in the excerpts, respond exactly with:
"Not disclosed."

Question:
%s

SEC Filing Excerpts:
%s

Answer:`
