package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/provider/nlp"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
	"github.com/MrWong99/ioanna/pkg/provider/vad"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one provider kind's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	llm       factories[llm.Provider]
	stt       factories[stt.Provider]
	tts       factories[tts.Provider]
	vad       factories[vad.Engine]
	camera    factories[vision.Camera]
	face      factories[vision.FaceAnalyzer]
	vision    factories[vision.EmotionClassifier]
	tone      factories[tone.Classifier]
	sentiment factories[sentiment.Scorer]
	nlp       factories[nlp.Analyzer]
	audioIn   factories[audio.Source]
	audioOut  factories[audio.Player]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:       newFactories[llm.Provider]("llm"),
		stt:       newFactories[stt.Provider]("stt"),
		tts:       newFactories[tts.Provider]("tts"),
		vad:       newFactories[vad.Engine]("vad"),
		camera:    newFactories[vision.Camera]("camera"),
		face:      newFactories[vision.FaceAnalyzer]("face"),
		vision:    newFactories[vision.EmotionClassifier]("vision"),
		tone:      newFactories[tone.Classifier]("tone"),
		sentiment: newFactories[sentiment.Scorer]("sentiment"),
		nlp:       newFactories[nlp.Analyzer]("nlp"),
		audioIn:   newFactories[audio.Source]("audio_in"),
		audioOut:  newFactories[audio.Player]("audio_out"),
	}
}

func register[T any](r *Registry, f *factories[T], name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.m[name] = factory
}

func create[T any](r *Registry, f *factories[T], entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := f.m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	register(r, &r.llm, name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	register(r, &r.stt, name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	register(r, &r.tts, name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory Factory[vad.Engine]) {
	register(r, &r.vad, name, factory)
}

// RegisterCamera registers a camera factory under name.
func (r *Registry) RegisterCamera(name string, factory Factory[vision.Camera]) {
	register(r, &r.camera, name, factory)
}

// RegisterFace registers a face detection and encoding factory under name.
func (r *Registry) RegisterFace(name string, factory Factory[vision.FaceAnalyzer]) {
	register(r, &r.face, name, factory)
}

// RegisterVision registers a facial-emotion classifier factory under name.
func (r *Registry) RegisterVision(name string, factory Factory[vision.EmotionClassifier]) {
	register(r, &r.vision, name, factory)
}

// RegisterTone registers a vocal-tone classifier factory under name.
func (r *Registry) RegisterTone(name string, factory Factory[tone.Classifier]) {
	register(r, &r.tone, name, factory)
}

// RegisterSentiment registers a sentiment scorer factory under name.
func (r *Registry) RegisterSentiment(name string, factory Factory[sentiment.Scorer]) {
	register(r, &r.sentiment, name, factory)
}

// RegisterNLP registers a sentence splitter and entity extractor factory
// under name.
func (r *Registry) RegisterNLP(name string, factory Factory[nlp.Analyzer]) {
	register(r, &r.nlp, name, factory)
}

// RegisterAudioIn registers a microphone source factory under name.
func (r *Registry) RegisterAudioIn(name string, factory Factory[audio.Source]) {
	register(r, &r.audioIn, name, factory)
}

// RegisterAudioOut registers a speaker output factory under name.
func (r *Registry) RegisterAudioOut(name string, factory Factory[audio.Player]) {
	register(r, &r.audioOut, name, factory)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, &r.llm, entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, &r.stt, entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, &r.tts, entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, &r.vad, entry)
}

// CreateCamera instantiates a camera using the factory registered under entry.Name.
func (r *Registry) CreateCamera(entry ProviderEntry) (vision.Camera, error) {
	return create(r, &r.camera, entry)
}

// CreateFace instantiates a face analyzer using the factory registered under entry.Name.
func (r *Registry) CreateFace(entry ProviderEntry) (vision.FaceAnalyzer, error) {
	return create(r, &r.face, entry)
}

// CreateVision instantiates a facial-emotion classifier using the factory
// registered under entry.Name.
func (r *Registry) CreateVision(entry ProviderEntry) (vision.EmotionClassifier, error) {
	return create(r, &r.vision, entry)
}

// CreateTone instantiates a vocal-tone classifier using the factory registered under entry.Name.
func (r *Registry) CreateTone(entry ProviderEntry) (tone.Classifier, error) {
	return create(r, &r.tone, entry)
}

// CreateSentiment instantiates a sentiment scorer using the factory registered under entry.Name.
func (r *Registry) CreateSentiment(entry ProviderEntry) (sentiment.Scorer, error) {
	return create(r, &r.sentiment, entry)
}

// CreateNLP instantiates a language analyzer using the factory registered under entry.Name.
func (r *Registry) CreateNLP(entry ProviderEntry) (nlp.Analyzer, error) {
	return create(r, &r.nlp, entry)
}

// CreateAudioIn instantiates a microphone source using the factory registered under entry.Name.
func (r *Registry) CreateAudioIn(entry ProviderEntry) (audio.Source, error) {
	return create(r, &r.audioIn, entry)
}

// CreateAudioOut instantiates a speaker output using the factory registered under entry.Name.
func (r *Registry) CreateAudioOut(entry ProviderEntry) (audio.Player, error) {
	return create(r, &r.audioOut, entry)
}
