package domain

import "errors"

const (
	DefaultAttackStrength   = 10000
	DefaultAcquisitionFleet = 100000
	DefaultReinforcement    = 100000
)

// ErrZeroDefense は防御値0で戦闘計算を行おうとした場合のエラー。
// 呼び出し側が事前に検証すべき前提条件違反なので Combat はpanicする。
var ErrZeroDefense = errors.New("combat: defense must be positive")

// CombatResult は1回の占領シミュレーション結果。
type CombatResult struct {
	Success           bool
	NumSpaceshipsLeft uint32
}

// CombatOutcome は戦闘1回分の双方の損失。
type CombatOutcome struct {
	AttackerLoss uint64
	DefenderLoss uint64
}

// CombatConfig は占領プレビューで使うプロトコル定数。
type CombatConfig struct {
	AttackStrength   uint64 // 固定攻撃力
	AcquisitionFleet uint64 // 占領に送る固定艦隊数
	Reinforcement    uint64 // 自分の惑星に対する acquire ボーナス
}

// DefaultCombatConfig はオンチェーンと同じ定数を返す。
func DefaultCombatConfig() CombatConfig {
	return CombatConfig{
		AttackStrength:   DefaultAttackStrength,
		AcquisitionFleet: DefaultAcquisitionFleet,
		Reinforcement:    DefaultReinforcement,
	}
}

// CombatSimulator はオンチェーンの整数演算による戦闘式をクライアント側で再現します。
// 状態を持たないので並行に呼び出してよい。
type CombatSimulator struct {
	cfg CombatConfig
}

// NewCombatSimulator は cfg のゼロ値フィールドをデフォルトで埋めてシミュレータを生成します。
func NewCombatSimulator(cfg CombatConfig) *CombatSimulator {
	def := DefaultCombatConfig()
	if cfg.AttackStrength == 0 {
		cfg.AttackStrength = def.AttackStrength
	}
	if cfg.AcquisitionFleet == 0 {
		cfg.AcquisitionFleet = def.AcquisitionFleet
	}
	if cfg.Reinforcement == 0 {
		cfg.Reinforcement = def.Reinforcement
	}
	return &CombatSimulator{cfg: cfg}
}

func (c *CombatSimulator) Config() CombatConfig {
	return c.cfg
}

// SimulateCapture は attacker が固定艦隊で惑星の占領を試みた場合の結果を予測します。
func (c *CombatSimulator) SimulateCapture(attacker string, info PlanetInfo, state PlanetState) CombatResult {
	if state.IsOwnedBy(attacker) {
		return CombatResult{
			Success:           true,
			NumSpaceshipsLeft: clampUint32(uint64(state.NumSpaceships) + c.cfg.Reinforcement),
		}
	}

	// 他者が占有している惑星への送り込みは戦闘前に拒否される
	if !state.Natives && state.NumSpaceships > 0 {
		return CombatResult{Success: false, NumSpaceshipsLeft: state.NumSpaceships}
	}

	numDefense := uint64(state.NumSpaceships)
	if state.Natives {
		numDefense = uint64(info.Stats.Natives)
	}

	outcome := Combat(c.cfg.AttackStrength, c.cfg.AcquisitionFleet, uint64(info.Stats.Defense), numDefense)
	if outcome.AttackerLoss < c.cfg.AcquisitionFleet {
		return CombatResult{
			Success:           true,
			NumSpaceshipsLeft: clampUint32(c.cfg.AcquisitionFleet - outcome.AttackerLoss),
		}
	}
	return CombatResult{Success: false, NumSpaceshipsLeft: state.NumSpaceships}
}

// Combat は攻撃側と防御側の損失を整数演算で計算します。割り算はすべて切り捨て。
// defense が0の場合は ErrZeroDefense でpanicする。
func Combat(attack, numAttack, defense, numDefense uint64) CombatOutcome {
	if defense == 0 {
		panic(ErrZeroDefense)
	}
	if numAttack == 0 || numDefense == 0 {
		return CombatOutcome{}
	}

	attackDamage := numAttack * attack / defense
	if numDefense > attackDamage {
		// 攻撃失敗: 攻撃側は全滅、防御側は attackDamage 分だけ失う (必ず1以上残る)
		return CombatOutcome{AttackerLoss: numAttack, DefenderLoss: attackDamage}
	}

	attackerLoss := numDefense * defense / attack
	if attackerLoss >= numAttack {
		attackerLoss = numAttack - 1
	}
	return CombatOutcome{AttackerLoss: attackerLoss, DefenderLoss: numDefense}
}

func clampUint32(v uint64) uint32 {
	if v > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}
