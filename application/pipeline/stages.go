package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dubbing-service/domain/artifact"
	"dubbing-service/domain/pipeline"
	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
)

// ExtractInput is an uploaded video
type ExtractInput struct {
	Filename     string
	Video        io.Reader
	LanguageHint string // overrides the configured recognition locale
}

// ExtractOutput is the result of the extract stage
type ExtractOutput struct {
	Session       *pipeline.Session
	Transcription string
	OriginalAudio artifact.Ref
	Transcript    artifact.Ref
	Warnings      []pipeline.Warning
}

// TranslateInput is the text to translate
type TranslateInput struct {
	SessionID      string
	Transcription  string
	TargetLanguage string
}

// TranslateOutput is the result of the translate stage
type TranslateOutput struct {
	Session                *pipeline.Session
	TranslatedText         string
	Text                   artifact.Ref
	DetectedSourceLanguage string
	Warnings               []pipeline.Warning
}

// SynthesizeInput is the text to speak
type SynthesizeInput struct {
	SessionID string
	Text      string
	Language  string
}

// SynthesizeOutput is the result of the synthesize stage
type SynthesizeOutput struct {
	Session *pipeline.Session
	Audio   artifact.Ref
}

// MergeInput names the synthesized audio to put on the session's video
type MergeInput struct {
	SessionID string
	AudioRef  string // URL, path or bare artifact name
}

// MergeOutput is the result of the merge stage
type MergeOutput struct {
	Session  *pipeline.Session
	Merged   artifact.Ref
	Warnings []pipeline.Warning
}

// Extract stores the upload, pulls out its audio and transcribes it.
// Artifacts written before a failing step are kept.
func (s *Service) Extract(ctx context.Context, in ExtractInput) (out *ExtractOutput, err error) {
	const stage = pipeline.StageExtract
	run := s.begin(ctx, stage)
	defer func() { run.end(&err) }()

	if in.Video == nil {
		return nil, pipeline.BadRequest(stage, "no video file provided")
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, pipeline.BadRequest(stage, "no selected file")
	}
	body := bufio.NewReader(in.Video)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, pipeline.BadRequest(stage, "uploaded video is empty")
		}
		return nil, &pipeline.Error{Kind: pipeline.KindBadRequest, Stage: stage, Message: "failed to read upload", Err: err}
	}

	sess := pipeline.NewSession(artifact.Stem(in.Filename), artifact.VideoExt(in.Filename), s.now())
	names := artifact.Names{Session: sess.ID, Stem: sess.Stem}
	sess.SourceName = names.SourceVideo(sess.SourceExt)
	run.session = sess.ID
	defer s.workspace.Release(sess.ID)

	if _, err := s.store.Put(ctx, artifact.BucketUploads, sess.SourceName, body); err != nil {
		return nil, s.storeError(stage, "failed to store upload", err)
	}
	s.sessions.Put(sess)
	s.logger.InfoContext(ctx, "stored upload", "session", sess.ID, "filename", in.Filename)

	videoPath, err := s.workspace.Input(ctx, sess.ID, artifact.BucketUploads, sess.SourceName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read upload", err)
	}

	// [1] demux the original track
	originalName := names.OriginalAudio()
	originalPath, err := s.workspace.Output(sess.ID, originalName)
	if err != nil {
		return nil, s.storeError(stage, "failed to prepare workspace", err)
	}
	if err := s.shell.DemuxAudio(ctx, videoPath, originalPath); err != nil {
		return nil, s.toolError(stage, "failed to extract audio", err)
	}
	if _, err := s.workspace.Publish(ctx, artifact.BucketAudio, originalName, originalPath); err != nil {
		return nil, s.storeError(stage, "failed to store original audio", err)
	}

	// [2] canonical recognition input
	originalPath, err = s.workspace.Input(ctx, sess.ID, artifact.BucketAudio, originalName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read original audio", err)
	}
	wavName := names.CanonicalWAV()
	wavPath, err := s.workspace.Output(sess.ID, wavName)
	if err != nil {
		return nil, s.storeError(stage, "failed to prepare workspace", err)
	}
	if err := s.shell.ResampleAudio(ctx, originalPath, wavPath); err != nil {
		return nil, s.toolError(stage, "failed to convert audio", err)
	}
	if _, err := s.workspace.Publish(ctx, artifact.BucketAudio, wavName, wavPath); err != nil {
		return nil, s.storeError(stage, "failed to store converted audio", err)
	}
	s.sessions.Update(sess.ID, func(x *pipeline.Session) {
		x.Advance(pipeline.StateAudioExtracted, s.now())
	})

	// [3] recognize
	wavPath, err = s.workspace.Input(ctx, sess.ID, artifact.BucketAudio, wavName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read converted audio", err)
	}
	hint := in.LanguageHint
	if hint == "" {
		hint = s.settings.LanguageHint
	}
	var warnings []pipeline.Warning
	text := ""
	result, err := s.transcriber.Transcribe(ctx, speech.Request{AudioPath: wavPath, LanguageHint: hint})
	switch {
	case err == nil:
		text = result.Text
	case ctx.Err() != nil:
		return nil, &pipeline.Error{Kind: pipeline.KindInternal, Stage: stage, Message: "speech recognition interrupted", Err: err}
	case s.settings.FailOnSpeechError:
		return nil, recognitionError(err)
	default:
		text = speech.Placeholder(err)
		warnings = append(warnings, recognitionWarning(err))
		s.logger.WarnContext(ctx, "speech recognition failed, using placeholder", "session", sess.ID, "error", err)
	}

	// [4] transcript
	transcriptName := names.Transcript()
	if _, err := s.store.Put(ctx, artifact.BucketAudio, transcriptName, strings.NewReader(text)); err != nil {
		return nil, s.storeError(stage, "failed to store transcript", err)
	}

	sess = s.advance(sess, stage, "")
	s.setLatest(sess.ID)
	return &ExtractOutput{
		Session:       sess,
		Transcription: text,
		OriginalAudio: artifact.Ref{Bucket: artifact.BucketAudio, Name: originalName},
		Transcript:    artifact.Ref{Bucket: artifact.BucketAudio, Name: transcriptName},
		Warnings:      warnings,
	}, nil
}

func recognitionError(err error) *pipeline.Error {
	if errors.Is(err, speech.ErrUnintelligibleAudio) {
		return &pipeline.Error{Kind: pipeline.KindUnintelligibleAudio, Stage: pipeline.StageExtract, Message: "speech recognition could not understand the audio", Err: err}
	}
	return &pipeline.Error{Kind: pipeline.KindRecognition, Stage: pipeline.StageExtract, Message: "speech recognition failed", Err: err}
}

func recognitionWarning(err error) pipeline.Warning {
	if errors.Is(err, speech.ErrUnintelligibleAudio) {
		return pipeline.Warning{Code: pipeline.WarnUnintelligibleAudio, Message: err.Error()}
	}
	return pipeline.Warning{Code: pipeline.WarnRecognitionFailed, Message: err.Error()}
}

// Translate translates text into the target language and stores it
func (s *Service) Translate(ctx context.Context, in TranslateInput) (out *TranslateOutput, err error) {
	const stage = pipeline.StageTranslate
	run := s.begin(ctx, stage)
	defer func() { run.end(&err) }()

	if strings.TrimSpace(in.Transcription) == "" {
		return nil, pipeline.BadRequest(stage, "transcription is empty")
	}
	target := strings.TrimSpace(in.TargetLanguage)
	if target == "" {
		target = s.settings.DefaultTargetLanguage
	}
	if !artifact.ValidLanguage(target) {
		return nil, pipeline.BadRequest(stage, "invalid target language "+target)
	}
	target = artifact.NormalizeLanguage(target)

	sess, err := s.resolveSession(ctx, stage, in.SessionID, "", true)
	if err != nil {
		return nil, err
	}
	run.session = sess.ID
	if !sess.Allows(stage) {
		return nil, conflict(stage, "session has no transcript yet")
	}

	var warnings []pipeline.Warning
	var detected string
	result, err := s.translator.Translate(ctx, translation.Request{Text: in.Transcription, TargetLanguage: target})
	text := result.Text
	switch {
	case err == nil:
		detected = result.DetectedSourceLanguage
	case ctx.Err() != nil:
		return nil, &pipeline.Error{Kind: pipeline.KindInternal, Stage: stage, Message: "translation interrupted", Err: err}
	case s.settings.FailOnTranslationError:
		return nil, &pipeline.Error{Kind: pipeline.KindTranslation, Stage: stage, Message: "translation failed", Err: err}
	default:
		text = translation.Placeholder(err)
		warnings = append(warnings, pipeline.Warning{Code: pipeline.WarnTranslationFailed, Message: err.Error()})
		s.logger.WarnContext(ctx, "translation failed, using placeholder", "session", sess.ID, "target", target, "error", err)
	}

	name := artifact.Names{Session: sess.ID, Stem: sess.Stem}.TranslatedText(target)
	if _, err := s.store.Put(ctx, artifact.BucketAudio, name, strings.NewReader(text)); err != nil {
		return nil, s.storeError(stage, "failed to store translation", err)
	}

	return &TranslateOutput{
		Session:                s.advance(sess, stage, target),
		TranslatedText:         text,
		Text:                   artifact.Ref{Bucket: artifact.BucketAudio, Name: name},
		DetectedSourceLanguage: detected,
		Warnings:               warnings,
	}, nil
}

// Synthesize speaks text in the given language and stores the audio
func (s *Service) Synthesize(ctx context.Context, in SynthesizeInput) (out *SynthesizeOutput, err error) {
	const stage = pipeline.StageSynthesize
	run := s.begin(ctx, stage)
	defer func() { run.end(&err) }()

	if strings.TrimSpace(in.Text) == "" {
		return nil, pipeline.BadRequest(stage, "text is empty")
	}
	lang := strings.TrimSpace(in.Language)
	if lang == "" {
		lang = s.settings.DefaultSpeechLanguage
	}
	if !artifact.ValidLanguage(lang) {
		return nil, pipeline.BadRequest(stage, "invalid language "+lang)
	}
	lang = artifact.NormalizeLanguage(lang)

	sess, err := s.resolveSession(ctx, stage, in.SessionID, "", true)
	if err != nil {
		return nil, err
	}
	run.session = sess.ID
	if (sess.Detached || in.SessionID == "") && sess.State == pipeline.StateTranscribed {
		// text handed in without a session counts as translated
		sess = s.advance(sess, pipeline.StageTranslate, "")
	}
	if !sess.Allows(stage) {
		return nil, conflict(stage, "session has no translation yet")
	}

	result, err := s.synthesizer.Synthesize(ctx, synthesis.Request{
		Text:         in.Text,
		LanguageCode: lang,
		Voice:        s.settings.Voices[lang],
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &pipeline.Error{Kind: pipeline.KindInternal, Stage: stage, Message: "speech synthesis interrupted", Err: err}
		}
		return nil, &pipeline.Error{Kind: pipeline.KindSynthesis, Stage: stage, Message: "speech synthesis failed", Err: err}
	}

	name := artifact.Names{Session: sess.ID, Stem: sess.Stem}.SynthesizedAudio(lang, result.Extension)
	if _, err := s.store.Put(ctx, artifact.BucketAudio, name, bytes.NewReader(result.Audio)); err != nil {
		return nil, s.storeError(stage, "failed to store synthesized audio", err)
	}

	return &SynthesizeOutput{
		Session: s.advance(sess, stage, lang),
		Audio:   artifact.Ref{Bucket: artifact.BucketAudio, Name: name},
	}, nil
}

// Merge replaces the audio of the session's source video with a stored audio artifact
func (s *Service) Merge(ctx context.Context, in MergeInput) (out *MergeOutput, err error) {
	const stage = pipeline.StageMerge
	run := s.begin(ctx, stage)
	defer func() { run.end(&err) }()

	if strings.TrimSpace(in.AudioRef) == "" {
		return nil, pipeline.BadRequest(stage, "audioPath is required")
	}
	audioName := artifact.NameFromReference(in.AudioRef)
	if artifact.ValidateName(audioName) != nil {
		return nil, pipeline.BadRequest(stage, "audioPath does not name an audio file")
	}
	lang, ok := artifact.LanguageFromSynthesized(audioName)
	if !ok {
		return nil, pipeline.BadRequest(stage, "audioPath does not name synthesized audio: "+audioName)
	}
	if _, err := s.store.Stat(ctx, artifact.BucketAudio, audioName); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, pipeline.BadRequest(stage, "audio file not found: "+audioName)
		}
		return nil, s.storeError(stage, "failed to look up audio", err)
	}

	sess, err := s.resolveSession(ctx, stage, in.SessionID, audioName, false)
	if err != nil {
		return nil, err
	}
	run.session = sess.ID
	if owner, ok := artifact.SessionFromName(audioName); ok && owner != sess.ID {
		return nil, pipeline.BadRequest(stage, "audio file belongs to another session")
	}
	if !sess.HasSource() {
		return nil, conflict(stage, "session has no source video")
	}
	if !sess.Allows(stage) {
		return nil, conflict(stage, "session has no synthesized audio yet")
	}
	defer s.workspace.Release(sess.ID)

	names := artifact.Names{Session: sess.ID, Stem: sess.Stem}
	videoPath, err := s.workspace.Input(ctx, sess.ID, artifact.BucketUploads, sess.SourceName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read source video", err)
	}

	// [1] silent copy of the video
	silentName := names.SilentVideo(sess.SourceExt)
	silentPath, err := s.workspace.Output(sess.ID, silentName)
	if err != nil {
		return nil, s.storeError(stage, "failed to prepare workspace", err)
	}
	if err := s.shell.StripAudio(ctx, videoPath, silentPath); err != nil {
		return nil, s.toolError(stage, "failed to remove original audio", err)
	}
	if _, err := s.workspace.Publish(ctx, artifact.BucketMerged, silentName, silentPath); err != nil {
		return nil, s.storeError(stage, "failed to store silent video", err)
	}
	silentPath, err = s.workspace.Input(ctx, sess.ID, artifact.BucketMerged, silentName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read silent video", err)
	}

	audioPath, err := s.workspace.Input(ctx, sess.ID, artifact.BucketAudio, audioName)
	if err != nil {
		return nil, s.storeError(stage, "failed to read audio", err)
	}

	// [2] length check
	policy := s.settings.MergePolicy
	var warnings []pipeline.Warning
	if w, ok := s.checkTruncation(ctx, sess.ID, silentPath, audioPath); ok {
		warnings = append(warnings, w)
	}

	// [3] mux
	mergedName := names.MergedVideo(lang, sess.SourceExt)
	mergedPath, err := s.workspace.Output(sess.ID, mergedName)
	if err != nil {
		return nil, s.storeError(stage, "failed to prepare workspace", err)
	}
	if err := s.shell.Mux(ctx, silentPath, audioPath, mergedPath, policy); err != nil {
		return nil, s.toolError(stage, "failed to merge audio and video", err)
	}
	if _, err := s.workspace.Publish(ctx, artifact.BucketMerged, mergedName, mergedPath); err != nil {
		return nil, s.storeError(stage, "failed to store merged video", err)
	}

	return &MergeOutput{
		Session:  s.advance(sess, stage, lang),
		Merged:   artifact.Ref{Bucket: artifact.BucketMerged, Name: mergedName},
		Warnings: warnings,
	}, nil
}

// checkTruncation warns when the configured policy will cut off synthesized speech
func (s *Service) checkTruncation(ctx context.Context, sessionID, videoPath, audioPath string) (pipeline.Warning, bool) {
	if s.prober == nil {
		return pipeline.Warning{}, false
	}
	video, err := s.prober.Duration(ctx, videoPath)
	if err != nil {
		s.logger.WarnContext(ctx, "could not probe video duration", "session", sessionID, "error", err)
		return pipeline.Warning{}, false
	}
	audio, err := s.prober.Duration(ctx, audioPath)
	if err != nil {
		s.logger.WarnContext(ctx, "could not probe audio duration", "session", sessionID, "error", err)
		return pipeline.Warning{}, false
	}
	if !s.settings.MergePolicy.TruncatesAudio(video, audio) {
		return pipeline.Warning{}, false
	}
	msg := fmt.Sprintf("synthesized audio (%s) is longer than the video (%s) and was cut off",
		audio.Round(100*time.Millisecond), video.Round(100*time.Millisecond))
	return pipeline.Warning{Code: pipeline.WarnAudioTruncated, Message: msg}, true
}
