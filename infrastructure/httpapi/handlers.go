package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/pipeline"
)

type extractResponse struct {
	Transcription  string             `json:"transcription"`
	AudioPath      string             `json:"audioPath"`
	SessionID      string             `json:"sessionId"`
	TranscriptPath string             `json:"transcriptPath"`
	Warnings       []pipeline.Warning `json:"warnings,omitempty"`
}

type translateRequest struct {
	Transcription  string `json:"transcription"`
	TargetLanguage string `json:"targetLanguage"`
	SessionID      string `json:"sessionId"`
}

type translateResponse struct {
	TranslatedText         string             `json:"translatedText"`
	FilePath               string             `json:"filePath"`
	SessionID              string             `json:"sessionId"`
	DetectedSourceLanguage string             `json:"detectedSourceLanguage,omitempty"`
	Warnings               []pipeline.Warning `json:"warnings,omitempty"`
}

type synthesizeRequest struct {
	TranslatedText string `json:"translatedText"`
	Language       string `json:"language"`
	SessionID      string `json:"sessionId"`
}

type synthesizeResponse struct {
	AudioFilePath string `json:"audioFilePath"`
	SessionID     string `json:"sessionId"`
}

type mergeRequest struct {
	AudioPath string `json:"audioPath"`
	SessionID string `json:"sessionId"`
}

type mergeResponse struct {
	MergedVideoPath string             `json:"mergedVideoPath"`
	SessionID       string             `json:"sessionId"`
	Warnings        []pipeline.Warning `json:"warnings,omitempty"`
}

// sessionID prefers the body field over the X-Session-ID header
func sessionID(c *gin.Context, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(headerSessionID))
}

func (s *Server) serveArtifact(bucket artifact.Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("filename")
		obj, err := s.pipeline.Open(c.Request.Context(), bucket, name)
		if err != nil {
			writeError(c, err)
			return
		}
		defer obj.Close()

		info := obj.Info()
		c.Header("Content-Type", artifact.ContentType(name))
		if rs, ok := obj.(io.ReadSeeker); ok {
			http.ServeContent(c.Writer, c.Request, name, info.ModTime, rs)
			return
		}
		c.DataFromReader(http.StatusOK, info.Size, artifact.ContentType(name), obj, nil)
	}
}

func (s *Server) extractAudio(c *gin.Context) {
	const stage = pipeline.StageExtract
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			tooLarge(c, stage, s.cfg.MaxUploadBytes)
		case errors.Is(err, http.ErrMissingFile):
			badRequest(c, stage, "no video file provided")
		default:
			badRequest(c, stage, "invalid multipart upload: "+err.Error())
		}
		return
	}
	defer file.Close()

	ctx, cancel := s.stageContext(c)
	defer cancel()

	out, err := s.pipeline.Extract(ctx, apppipeline.ExtractInput{
		Filename:     header.Filename,
		Video:        file,
		LanguageHint: c.PostForm("language"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(headerSessionID, out.Session.ID)
	c.JSON(http.StatusOK, extractResponse{
		Transcription:  out.Transcription,
		AudioPath:      s.artifactURL(c, out.OriginalAudio),
		SessionID:      out.Session.ID,
		TranscriptPath: s.artifactURL(c, out.Transcript),
		Warnings:       out.Warnings,
	})
}

func (s *Server) translateText(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, pipeline.StageTranslate, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := s.stageContext(c)
	defer cancel()

	out, err := s.pipeline.Translate(ctx, apppipeline.TranslateInput{
		SessionID:      sessionID(c, req.SessionID),
		Transcription:  req.Transcription,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(headerSessionID, out.Session.ID)
	c.JSON(http.StatusOK, translateResponse{
		TranslatedText:         out.TranslatedText,
		FilePath:               s.artifactURL(c, out.Text),
		SessionID:              out.Session.ID,
		DetectedSourceLanguage: out.DetectedSourceLanguage,
		Warnings:               out.Warnings,
	})
}

func (s *Server) textToAudio(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, pipeline.StageSynthesize, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := s.stageContext(c)
	defer cancel()

	out, err := s.pipeline.Synthesize(ctx, apppipeline.SynthesizeInput{
		SessionID: sessionID(c, req.SessionID),
		Text:      req.TranslatedText,
		Language:  req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(headerSessionID, out.Session.ID)
	c.JSON(http.StatusOK, synthesizeResponse{
		AudioFilePath: s.artifactURL(c, out.Audio),
		SessionID:     out.Session.ID,
	})
}

func (s *Server) mergeAudioVideo(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, pipeline.StageMerge, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := s.stageContext(c)
	defer cancel()

	out, err := s.pipeline.Merge(ctx, apppipeline.MergeInput{
		SessionID: sessionID(c, req.SessionID),
		AudioRef:  req.AudioPath,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(headerSessionID, out.Session.ID)
	c.JSON(http.StatusOK, mergeResponse{
		MergedVideoPath: s.artifactURL(c, out.Merged),
		SessionID:       out.Session.ID,
		Warnings:        out.Warnings,
	})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.pipeline.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
