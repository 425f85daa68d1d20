package ollama

func buildClassificationPrompt(textSample string) string {
	const header = `You are a resume screener.
Decide whether the document below is a legitimate CV/resume of a software professional.
Return strict JSON object with keys:
is_cv (boolean), confidence (number from 0 to 1), reason (string, one sentence, user-readable).
No markdown, no extra keys.

`
	if textSample == "" {
		return header + `The document has no extractable text layer (likely scanned).
Judge from that fact alone: set is_cv to false only if an empty text layer alone proves it is not a CV; otherwise lean on low confidence.

Document text: (empty)`
	}
	return header + "Document text:\n" + textSample
}

const pageToMarkdownPrompt = `Transcribe this resume page into clean markdown.
Preserve headings, bullet lists and tables. Keep the reading order of the page.
Do not invent content, do not summarize, do not add commentary.
Output only the markdown.`

func buildProfilePrompt(markdown string) string {
	const maxInput = 12000
	if len(markdown) > maxInput {
		markdown = markdown[:maxInput]
	}

	return `You are an HR data extractor.
Return strict JSON object with keys:
summary (string),
skills (array of strings),
experience (array of objects: company, title, employment_type, start, end, description, skills),
education (array of objects: institution, degree, field_of_study, start, end, gpa).
Dates are "YYYY-MM" or free text; use "present" for ongoing roles.
Empty lists are [], never null. Do not invent facts. No markdown, no extra keys.

Resume:
` + markdown
}
