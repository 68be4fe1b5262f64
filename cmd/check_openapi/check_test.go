package main

import (
	"fmt"
	"strings"
	"testing"
)

func TestRepositoryDocsAreConsistent(t *testing.T) {
	var docs []namedDoc
	for _, path := range []string{"../../api/recite-openapi.yaml", "../../api/blog-openapi.yaml"} {
		doc, err := loadDoc(path)
		if err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
		docs = append(docs, namedDoc{name: path, doc: doc})
	}
	if err := checkDocs(docs); err != nil {
		t.Fatalf("check docs: %v", err)
	}
}

const baseDoc = `
paths:
  /x:
    get:
      responses:
        "400":
          content:
            application/json:
              schema: { $ref: "#/components/schemas/%s" }
components:
  schemas:
    ErrorResponse:
      type: object
      required: [error, code]
      properties:
        error: { type: string }
        code: { type: string, enum: [%s] }
        requestId: { type: %s }
`

func mustParse(t *testing.T, ref, codes, requestIDType string) openAPIDoc {
	t.Helper()
	doc, err := parseDoc([]byte(fmt.Sprintf(baseDoc, ref, codes, requestIDType)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

const systemCodeList = "SYSTEM_INTERNAL_ERROR, SYSTEM_METHOD_NOT_ALLOWED, SYSTEM_NOT_FOUND"

func TestCheckDocsFailures(t *testing.T) {
	good := mustParse(t, "ErrorResponse", "A_FAILED, "+systemCodeList, "string")
	cases := map[string]struct {
		other openAPIDoc
		want  string
	}{
		"unresolved ref":      {mustParse(t, "Missing", "B_FAILED, "+systemCodeList, "string"), "unresolved refs"},
		"shape mismatch":      {mustParse(t, "ErrorResponse", "B_FAILED, "+systemCodeList, "integer"), "requestId must be string"},
		"missing system code": {mustParse(t, "ErrorResponse", "B_FAILED, SYSTEM_INTERNAL_ERROR", "string"), "missing SYSTEM_METHOD_NOT_ALLOWED"},
		"unknown system code": {mustParse(t, "ErrorResponse", "SYSTEM_TEAPOT, "+systemCodeList, "string"), "unknown system code SYSTEM_TEAPOT"},
		"lower-case code":     {mustParse(t, "ErrorResponse", "b_failed, "+systemCodeList, "string"), "UPPER_SNAKE_CASE"},
		"duplicated codes":    {mustParse(t, "ErrorResponse", "SYSTEM_NOT_FOUND, "+systemCodeList, "string"), "listed twice"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := checkDocs([]namedDoc{{name: "good", doc: good}, {name: "other", doc: tc.other}})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
	if err := checkDocs([]namedDoc{{name: "a", doc: good}, {name: "b", doc: good}}); err != nil {
		t.Fatalf("identical docs: %v", err)
	}
}

func TestRateLimitCodeIsPerService(t *testing.T) {
	limited := mustParse(t, "ErrorResponse", "A_FAILED, SYSTEM_RATE_LIMITED, "+systemCodeList, "string")
	open := mustParse(t, "ErrorResponse", "B_FAILED, "+systemCodeList, "string")
	if err := checkDocs([]namedDoc{{name: "limited", doc: limited}, {name: "open", doc: open}}); err != nil {
		t.Fatalf("check docs: %v", err)
	}
}
