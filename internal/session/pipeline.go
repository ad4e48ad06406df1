package session

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/vault"
)

// Stage is a step of the unlock pipeline.
type Stage int

const (
	StageStart Stage = iota
	StageReadBytes
	StageParseContainer
	StageRecoverKey
	StageDecryptPayload
	StageDeserializeGraph
	StageHardenGraph
	StageUnlocked
)

var stageNames = [...]string{
	StageStart:            "start",
	StageReadBytes:        "read_bytes",
	StageParseContainer:   "parse_container",
	StageRecoverKey:       "recover_key",
	StageDecryptPayload:   "decrypt_payload",
	StageDeserializeGraph: "deserialize_graph",
	StageHardenGraph:      "harden_graph",
	StageUnlocked:         "unlocked",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Unlocked is the result of a successful pipeline run. The caller owns
// VaultKey and must wipe it.
type Unlocked struct {
	Header   *vault.Header
	Graph    *domain.Graph
	VaultKey *secure.Buffer
}

// Pipeline turns container bytes, a password and a key bundle into an
// unlocked graph. It holds no state between runs.
type Pipeline struct {
	engine  *vault.Engine
	wrapper *vault.KeyWrapper
	logger  zerolog.Logger
}

// NewPipeline creates a pipeline that recovers keys with wrapper.
func NewPipeline(engine *vault.Engine, wrapper *vault.KeyWrapper, logger zerolog.Logger) *Pipeline {
	return &Pipeline{engine: engine, wrapper: wrapper, logger: logger}
}

func (p *Pipeline) fail(stage Stage, kind error, cause error) error {
	ev := p.logger.Debug().Str("stage", stage.String()).Str("result", kind.Error())
	if cause != nil {
		ev = ev.Str("cause", causeCategory(cause))
	}
	ev.Msg("unlock failed")
	return unlockErr(kind)
}

// Run executes ParseContainer, RecoverKey, DecryptPayload, DeserializeGraph
// and HardenGraph in order. Each stage either succeeds or ends the run.
func (p *Pipeline) Run(data, password []byte, bundle *vault.KeyBundle) (*Unlocked, error) {
	stage := StageParseContainer
	p.logger.Debug().Str("stage", stage.String()).Int("bytes", len(data)).Msg("unlock stage")
	header, payload, err := vault.DecodeContainer(data)
	if err != nil {
		return nil, p.fail(stage, ErrCorruptedVault, err)
	}

	stage = StageRecoverKey
	p.logger.Debug().Str("stage", stage.String()).Msg("unlock stage")
	if bundle == nil {
		return nil, p.fail(stage, ErrCorruptedVault, vault.ErrInvalidKeyBundle)
	}
	if bundle.KDF != header.KDF {
		return nil, p.fail(stage, ErrCorruptedVault, vault.ErrInvalidKDFParams)
	}
	vaultKey, err := p.wrapper.RecoverVaultKey(bundle, password)
	if err != nil {
		if errors.Is(err, vault.ErrUnwrapFailed) {
			return nil, p.fail(stage, ErrInvalidPassword, nil)
		}
		return nil, p.fail(stage, ErrCorruptedVault, err)
	}

	graph, err := p.openGraph(header, payload, vaultKey)
	if err != nil {
		vaultKey.Wipe()
		return nil, err
	}

	p.logger.Debug().Str("stage", StageUnlocked.String()).Int("entries", len(graph.Entries)).Msg("unlock stage")
	return &Unlocked{Header: header, Graph: graph, VaultKey: vaultKey}, nil
}

func (p *Pipeline) openGraph(header *vault.Header, payload *vault.Bundle, vaultKey *secure.Buffer) (*domain.Graph, error) {
	stage := StageDecryptPayload
	p.logger.Debug().Str("stage", stage.String()).Msg("unlock stage")
	plain, err := p.engine.OpenContainer(header, payload, vaultKey)
	if err != nil {
		return nil, p.fail(stage, ErrCorruptedVault, err)
	}
	defer plain.Wipe()

	stage = StageDeserializeGraph
	p.logger.Debug().Str("stage", stage.String()).Int("bytes", plain.Len()).Msg("unlock stage")
	var graph *domain.Graph
	err = plain.WithRead(func(b []byte) error {
		var derr error
		graph, derr = domain.UnmarshalGraph(b)
		return derr
	})
	if err != nil {
		return nil, p.fail(stage, ErrModelDecodeFailed, err)
	}

	stage = StageHardenGraph
	p.logger.Debug().Str("stage", stage.String()).Msg("unlock stage")
	if err := domain.Harden(graph); err != nil {
		return nil, p.fail(stage, ErrCorruptedVault, err)
	}
	return graph, nil
}

// causeCategory names the class of an internal failure without including
// any message text from wrapped errors.
func causeCategory(err error) string {
	var ge *domain.GraphError
	switch {
	case errors.As(err, &ge):
		return ge.Violation.Error()
	case errors.Is(err, vault.ErrHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, vault.ErrBadMagic):
		return "bad_magic"
	case errors.Is(err, vault.ErrUnsupportedFormatVersion),
		errors.Is(err, vault.ErrVaultVersionMismatch),
		errors.Is(err, vault.ErrSchemaVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, vault.ErrHeaderTruncated),
		errors.Is(err, vault.ErrHeaderBodyTruncated),
		errors.Is(err, vault.ErrPayloadTruncated),
		errors.Is(err, vault.ErrMissingPayload),
		errors.Is(err, vault.ErrTrailingData):
		return "truncation"
	case errors.Is(err, vault.ErrDecryptionFailure):
		return "decryption_failure"
	case errors.Is(err, vault.ErrInvalidKeyBundle):
		return "invalid_key_bundle"
	case errors.Is(err, vault.ErrInvalidKDFParams):
		return "invalid_kdf_params"
	case errors.Is(err, domain.ErrGraphDecode):
		return "graph_decode"
	case errors.Is(err, vault.ErrInvalidInput):
		return "invalid_input"
	default:
		return "structural"
	}
}
