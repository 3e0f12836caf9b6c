package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/audit"
	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/repository"
	"github.com/saunafleet/fleet-server/internal/util"
)

const (
	pairingCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	pairingCodeLength = 6
	maxCodeAttempts   = 10
	maxOriginHintLen  = 200
	defaultCodeTTL    = 900 * time.Second
	defaultDeviceName = "Display"
)

type PairingService struct {
	store        repository.Store
	devices      *DeviceService
	ttl          time.Duration
	abandonedAge time.Duration
	now          func() time.Time
	newCode      func() (string, error)
}

// NewPairingService creates the pairing registry. abandonedAge <= 0 keeps
// devices that never sent a heartbeat forever.
func NewPairingService(
	store repository.Store,
	devices *DeviceService,
	ttl time.Duration,
	abandonedAge time.Duration,
) *PairingService {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	return &PairingService{
		store:        store,
		devices:      devices,
		ttl:          ttl,
		abandonedAge: abandonedAge,
		now:          time.Now,
		newCode:      generateRandomCode,
	}
}

func (s *PairingService) TTL() time.Duration {
	return s.ttl
}

// RequestCode returns the open code of the same origin if there is one,
// otherwise a freshly allocated code.
func (s *PairingService) RequestCode(ctx context.Context, originHint string) (*model.PairingCode, error) {
	originHint = strings.TrimSpace(originHint)
	if len(originHint) > maxOriginHintLen {
		return nil, apperrors.InvalidInput("originHint", fmt.Sprintf("must be at most %d characters", maxOriginHintLen))
	}

	now := s.now()
	var (
		pc     *model.PairingCode
		reused bool
	)
	err := s.store.WithLock(ctx, func(tx repository.Tx) error {
		codes := tx.PairingCodes()

		if originHint != "" {
			open, err := codes.FindUnclaimedByOrigin(ctx, originHint)
			if err != nil {
				return fmt.Errorf("find open codes: %w", err)
			}
			for i := range open {
				if !open[i].IsExpired(now, s.ttl) {
					pc = &open[i]
					reused = true
					return nil
				}
			}
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := s.newCode()
			if err != nil {
				return err
			}
			existing, err := codes.FindByCode(ctx, code)
			if err != nil {
				return fmt.Errorf("check code: %w", err)
			}
			if existing != nil {
				continue
			}

			pc, err = codes.Create(ctx, model.CreatePairingCodeParams{
				Code:       code,
				OriginHint: originHint,
				CreatedAt:  now,
			})
			if err != nil {
				return fmt.Errorf("create pairing code: %w", err)
			}
			return nil
		}
		return apperrors.CodeAllocationFailed(maxCodeAttempts)
	})
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeCodeAllocationFailed {
			log.Error().Err(err).Str("originHint", originHint).Msg("pairing code space exhausted")
		}
		return nil, storeError(err)
	}

	if !reused {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventCodeIssue,
			Code:    util.MaskCode(pc.Code),
			Details: map[string]interface{}{"originHint": originHint},
		})
	}
	log.Debug().
		Str("code", util.MaskCode(pc.Code)).
		Bool("reused", reused).
		Time("expiresAt", pc.ExpiresAt(s.ttl)).
		Msg("pairing code handed out")

	return pc, nil
}

func normalizeCode(code string) (string, error) {
	code = util.NormalizeCode(code)
	if code == "" {
		return "", apperrors.MissingRequired("code")
	}
	if !util.IsValidCode(code, pairingCodeChars, pairingCodeLength) {
		return "", apperrors.InvalidInput("code", "not a pairing code")
	}
	return code, nil
}

// Claim binds code to a new device and returns its id. Claiming an already
// claimed code returns the device it is bound to.
func (s *PairingService) Claim(ctx context.Context, code, name string) (deviceID string, err error) {
	code, err = normalizeCode(code)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultDeviceName + " " + code
	}
	name, err = normalizeName(name)
	if err != nil {
		return "", err
	}

	now := s.now()
	var created bool
	err = s.store.WithLock(ctx, func(tx repository.Tx) error {
		pc, err := tx.PairingCodes().FindByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("find code: %w", err)
		}
		if pc == nil {
			return apperrors.UnknownCode()
		}
		if pc.IsClaimed() {
			deviceID = *pc.ClaimedDeviceID
			return nil
		}
		if pc.IsExpired(now, s.ttl) {
			return apperrors.CodeExpired()
		}

		device, err := createDevice(ctx, tx, name, now)
		if err != nil {
			return err
		}
		if err := tx.PairingCodes().MarkClaimed(ctx, code, device.ID, now); err != nil {
			return fmt.Errorf("claim code: %w", err)
		}
		deviceID = device.ID
		created = true
		return nil
	})
	if err != nil {
		return "", storeError(err)
	}

	if created {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventDevicePair,
			DeviceID: deviceID,
			Code:     util.MaskCode(code),
			Details:  map[string]interface{}{"name": name},
		})
	} else {
		log.Info().Str("code", util.MaskCode(code)).Str("deviceId", deviceID).Msg("repeated claim of paired code")
	}
	return deviceID, nil
}

// Poll reports the state of a code without changing it.
func (s *PairingService) Poll(ctx context.Context, code string) (*model.PollResult, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	var pc *model.PairingCode
	err = s.store.View(ctx, func(r repository.Reader) error {
		pc, err = r.PairingCodes().FindByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	if pc == nil {
		return &model.PollResult{}, nil
	}
	return &model.PollResult{
		Exists:   true,
		Claimed:  pc.IsClaimed(),
		Expired:  pc.IsExpired(s.now(), s.ttl),
		DeviceID: pc.ClaimedDeviceID,
	}, nil
}

// OpenCode returns code while it can still be claimed.
func (s *PairingService) OpenCode(ctx context.Context, code string) (*model.PairingCode, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	var pc *model.PairingCode
	err = s.store.View(ctx, func(r repository.Reader) error {
		pc, err = r.PairingCodes().FindByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	switch {
	case pc == nil:
		return nil, apperrors.UnknownCode()
	case pc.IsClaimed():
		return nil, apperrors.InvalidInput("code", "already claimed")
	case pc.IsExpired(s.now(), s.ttl):
		return nil, apperrors.CodeExpired()
	}
	return pc, nil
}

func (s *PairingService) ListCodes(ctx context.Context) ([]model.PairingCodeStatus, error) {
	var codes []model.PairingCode
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		codes, err = r.PairingCodes().List(ctx)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	now := s.now()
	out := make([]model.PairingCodeStatus, 0, len(codes))
	for _, pc := range codes {
		out = append(out, model.PairingCodeStatus{
			PairingCode: pc,
			ExpiresAt:   pc.ExpiresAt(s.ttl),
			Expired:     pc.IsExpired(now, s.ttl),
		})
	}
	return out, nil
}

// GarbageCollect deletes unclaimed codes older than the TTL, codes bound to
// devices that no longer exist, and devices that were paired but never sent
// a heartbeat within the abandoned age. Claimed codes are never reopened.
func (s *PairingService) GarbageCollect(ctx context.Context, now time.Time) (*model.GarbageCollectResult, error) {
	result := &model.GarbageCollectResult{}
	var abandoned []string

	err := s.store.WithLock(ctx, func(tx repository.Tx) error {
		devices, err := tx.Devices().List(ctx)
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		codes, err := tx.PairingCodes().List(ctx)
		if err != nil {
			return fmt.Errorf("list codes: %w", err)
		}

		live := make(map[string]bool, len(devices))
		for _, d := range devices {
			if s.isAbandoned(d, now) {
				if _, err := tx.Devices().Delete(ctx, d.ID, now); err != nil {
					return fmt.Errorf("delete device %s: %w", d.ID, err)
				}
				abandoned = append(abandoned, d.ID)
				continue
			}
			live[d.ID] = true
		}

		var stale []string
		for _, pc := range codes {
			switch {
			case pc.IsClaimed() && !live[*pc.ClaimedDeviceID]:
				stale = append(stale, pc.Code)
			case pc.IsExpired(now, s.ttl):
				stale = append(stale, pc.Code)
			}
		}

		n, err := tx.PairingCodes().DeleteByCodes(ctx, stale)
		if err != nil {
			return fmt.Errorf("delete codes: %w", err)
		}
		result.DeletedDevices = len(abandoned)
		result.DeletedPairings = int(n)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("garbage collection failed")
		return nil, storeError(err)
	}

	for _, id := range abandoned {
		s.devices.forgetHeartbeats(ctx, id)
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventGarbageCollect,
		Details: map[string]interface{}{
			"deletedDevices":  result.DeletedDevices,
			"deletedPairings": result.DeletedPairings,
		},
	})
	return result, nil
}

func (s *PairingService) isAbandoned(d model.Device, now time.Time) bool {
	return s.abandonedAge > 0 && d.LastSeenAt == nil && now.Sub(d.CreatedAt) > s.abandonedAge
}

func generateRandomCode() (string, error) {
	return util.RandomString(pairingCodeChars, pairingCodeLength)
}
