package util

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func GetSubmissionKey(id string) string {
	return fmt.Sprintf("submission:%s", id)
}

func GetCodeArchivePath(codeHash string) string {
	return fmt.Sprintf("submissions/code/%s", codeHash)
}
