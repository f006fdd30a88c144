package stt_test

import (
	"github.com/clinicai/server/adapters/stt"
	"github.com/clinicai/server/domain/repositories"
)

var _ repositories.Transcriber = &stt.GoogleTranscriber{}
var _ repositories.Transcriber = &stt.MockTranscriber{}
