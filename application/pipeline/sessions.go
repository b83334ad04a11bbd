package pipeline

import (
	"context"
	"path"
	"strings"

	"dubbing-service/domain/artifact"
	"dubbing-service/domain/pipeline"
)

// resolveSession finds the session a stage works in: the explicit id first,
// then the session prefix of ref. Without either, the latest upload is
// continued when AttachToLatest is set, and otherwise a detached session is
// opened when allowed.
func (s *Service) resolveSession(ctx context.Context, stage pipeline.Stage, id, ref string, detached bool) (*pipeline.Session, error) {
	if id == "" && ref != "" {
		if sid, ok := artifact.SessionFromName(artifact.NameFromReference(ref)); ok {
			id = sid
		}
	}
	if id != "" {
		return s.loadSession(ctx, stage, id)
	}
	if !detached {
		return nil, pipeline.BadRequest(stage, "a session id is required")
	}

	if s.settings.AttachToLatest {
		if latest := s.latestSession(); latest != "" {
			sess, err := s.loadSession(ctx, stage, latest)
			switch {
			case err == nil:
				s.logger.InfoContext(ctx, "attached to latest upload", "session", sess.ID, "stage", stage)
				return sess, nil
			case pipeline.KindOf(err) != pipeline.KindNotFound:
				return nil, err
			}
		}
	}

	sess := pipeline.NewDetachedSession(s.now())
	s.sessions.Put(sess)
	s.logger.InfoContext(ctx, "opened detached session", "session", sess.ID, "stage", stage)
	return sess, nil
}

// loadSession returns a known session, recovering it from the artifact namespace when evicted
func (s *Service) loadSession(ctx context.Context, stage pipeline.Stage, id string) (*pipeline.Session, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !sessionIDRe.MatchString(id) {
		return nil, pipeline.BadRequest(stage, "invalid session id")
	}
	if sess, ok := s.sessions.Get(id); ok {
		return sess, nil
	}

	sess, err := s.recoverSession(ctx, id)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindInternal, Stage: stage, SessionID: id, Message: "failed to recover session", Err: err}
	}
	if sess == nil {
		return nil, &pipeline.Error{Kind: pipeline.KindNotFound, Stage: stage, SessionID: id, Message: "session not found"}
	}

	s.sessions.Put(sess)
	s.logger.InfoContext(ctx, "recovered session from artifacts", "session", id, "state", sess.State)
	return sess.Clone(), nil
}

// recoverSession rebuilds a session from the names of its artifacts.
// It returns nil when the store holds nothing for id.
func (s *Service) recoverSession(ctx context.Context, id string) (*pipeline.Session, error) {
	lister, ok := s.store.(artifact.Lister)
	if !ok {
		return nil, nil
	}

	prefix := id + "_"
	sess := &pipeline.Session{ID: id, State: pipeline.StateUploaded}
	found := false
	seen := func(info artifact.Info) {
		found = true
		if sess.CreatedAt.IsZero() || info.ModTime.Before(sess.CreatedAt) {
			sess.CreatedAt = info.ModTime
		}
		if info.ModTime.After(sess.UpdatedAt) {
			sess.UpdatedAt = info.ModTime
		}
	}

	uploads, err := lister.List(ctx, artifact.BucketUploads, prefix)
	if err != nil {
		return nil, err
	}
	for _, info := range uploads {
		if strings.HasPrefix(info.Name, prefix+"source") {
			seen(info)
			sess.SourceName = info.Name
			sess.SourceExt = path.Ext(info.Name)
			sess.Advance(pipeline.StateUploaded, info.ModTime)
		}
	}

	audio, err := lister.List(ctx, artifact.BucketAudio, prefix)
	if err != nil {
		return nil, err
	}
	for _, info := range audio {
		rest := strings.TrimPrefix(info.Name, prefix)
		kind, lang := artifact.Classify(info.Name)
		switch kind {
		case artifact.KindOriginalAudio:
			seen(info)
			sess.Stem = strings.TrimSuffix(rest, "_original_audio.mp3")
			sess.Advance(pipeline.StateAudioExtracted, sess.UpdatedAt)
		case artifact.KindCanonicalWAV:
			seen(info)
			sess.Advance(pipeline.StateAudioExtracted, sess.UpdatedAt)
		case artifact.KindTranscript:
			seen(info)
			sess.Stem = strings.TrimSuffix(rest, "_transcription.txt")
			sess.Advance(pipeline.StateTranscribed, sess.UpdatedAt)
		case artifact.KindTranslatedText:
			seen(info)
			sess.AddLanguage(lang)
			sess.Advance(pipeline.StateTranslated, sess.UpdatedAt)
		case artifact.KindSynthesizedAudio:
			seen(info)
			sess.AddLanguage(lang)
			sess.Advance(pipeline.StateSynthesized, sess.UpdatedAt)
		}
	}

	merged, err := lister.List(ctx, artifact.BucketMerged, prefix)
	if err != nil {
		return nil, err
	}
	for _, info := range merged {
		if strings.HasPrefix(info.Name, prefix+"merged") {
			seen(info)
			sess.Advance(pipeline.StateMerged, sess.UpdatedAt)
		}
	}

	if !found {
		return nil, nil
	}
	if !sess.HasSource() {
		sess.Detached = true
		sess.Advance(pipeline.StateTranscribed, sess.UpdatedAt)
	}
	if sess.Stem == "" {
		sess.Stem = "text"
	}
	return sess, nil
}

// advance records a finished stage on the session
func (s *Service) advance(sess *pipeline.Session, stage pipeline.Stage, lang string) *pipeline.Session {
	now := s.now()
	apply := func(x *pipeline.Session) {
		x.Advance(stage.Produces(), now)
		if lang != "" {
			x.AddLanguage(lang)
		}
	}
	if updated, ok := s.sessions.Update(sess.ID, apply); ok {
		return updated
	}
	// evicted while the stage ran
	apply(sess)
	s.sessions.Put(sess)
	return sess.Clone()
}
