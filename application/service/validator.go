package service

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"conquest/application/request"
	"conquest/domain"
)

const addressHexLen = 40

// SimpleValidator は最低限の入力検証を提供するデフォルト実装。
type SimpleValidator struct{}

func (SimpleValidator) Capture(req request.Capture) error {
	if req.Attacker == "" {
		return errors.New("attacker address is required")
	}
	if !validAddress(req.Attacker) {
		return fmt.Errorf("invalid attacker address: %q", req.Attacker)
	}
	return nil
}

func (SimpleValidator) Planet(info domain.PlanetInfo) error {
	if info.Stats.Defense == 0 {
		return fmt.Errorf("planet %+v has zero defense", info.Location)
	}
	return nil
}

func validAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return false
	}
	body := addr[2:]
	if len(body) != addressHexLen {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
