package realtime

import (
	"testing"
	"time"

	"EduServer/model"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func TestReconcile_StepOrder(t *testing.T) {
	grace := 2 * time.Minute
	loginAt := testNow.Add(-10 * time.Minute)
	local := Local{Fingerprint: "fp-a", LoginAt: loginAt, LastAckLogoutAt: loginAt}
	devA := model.DeviceRecord{Fingerprint: "fp-a"}

	tests := []struct {
		name   string
		state  *model.AccountSecurityState
		step   int
		action Action
	}{
		{
			name: "管理员即使被踢也不处理",
			state: &model.AccountSecurityState{
				Role:          model.RoleAdmin,
				KickedDevices: []string{"fp-a"},
				Banned:        true,
				PermanentBan:  true,
			},
			step:   1,
			action: ActionNone,
		},
		{
			name: "被踢优先于封禁",
			state: &model.AccountSecurityState{
				Role:          model.RoleStudent,
				KickedDevices: []string{"fp-a"},
				Banned:        true,
				PermanentBan:  true,
			},
			step:   2,
			action: ActionKicked,
		},
		{
			name: "封禁中不执行强制下线检查",
			state: &model.AccountSecurityState{
				Role:          model.RoleStudent,
				Banned:        true,
				BanExpiresAt:  ptrTime(testNow.Add(time.Minute)),
				ForceLogoutAt: ptrTime(testNow),
			},
			step:   3,
			action: ActionShowBan,
		},
		{
			name: "过期封禁需要清理",
			state: &model.AccountSecurityState{
				Role:         model.RoleStudent,
				Devices:      []model.DeviceRecord{devA},
				Banned:       true,
				BanExpiresAt: ptrTime(testNow.Add(-time.Second)),
			},
			step:   4,
			action: ActionClearExpired,
		},
		{
			name: "更新的强制下线",
			state: &model.AccountSecurityState{
				Role:          model.RoleStudent,
				Devices:       []model.DeviceRecord{devA},
				ForceLogoutAt: ptrTime(loginAt.Add(time.Second)),
			},
			step:   5,
			action: ActionForceLogout,
		},
		{
			name: "已确认过的强制下线不再处理",
			state: &model.AccountSecurityState{
				Role:          model.RoleStudent,
				Devices:       []model.DeviceRecord{devA},
				ForceLogoutAt: ptrTime(loginAt),
			},
			step:   0,
			action: ActionNone,
		},
		{
			name: "设备被移除且超过宽限期",
			state: &model.AccountSecurityState{
				Role: model.RoleStudent,
			},
			step:   6,
			action: ActionEvicted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Reconcile(tt.state, local, testNow, grace)
			assert.Equal(t, tt.step, v.Step)
			assert.Equal(t, tt.action, v.Action)
		})
	}
}

func TestReconcile_GracePeriodSuppressesEviction(t *testing.T) {
	grace := 2 * time.Minute
	state := &model.AccountSecurityState{Role: model.RoleStudent}
	local := Local{Fingerprint: "fp-a", LoginAt: testNow, LastAckLogoutAt: testNow}

	assert.Equal(t, ActionNone, Reconcile(state, local, testNow.Add(time.Minute), grace).Action)
	assert.Equal(t, ActionNone, Reconcile(state, local, testNow.Add(grace), grace).Action)
	assert.Equal(t, ActionEvicted, Reconcile(state, local, testNow.Add(grace+time.Second), grace).Action)
}

func TestReconcile_ForceLogoutComparedAtMillisecondPrecision(t *testing.T) {
	stamped := testNow.Add(700 * time.Microsecond)
	state := &model.AccountSecurityState{
		Role:          model.RoleStudent,
		Devices:       []model.DeviceRecord{{Fingerprint: "fp-a"}},
		ForceLogoutAt: &stamped,
	}
	loginMs := time.UnixMilli(stamped.UnixMilli())
	local := Local{Fingerprint: "fp-a", LoginAt: loginMs, LastAckLogoutAt: loginMs}

	assert.Equal(t, ActionNone, Reconcile(state, local, testNow.Add(time.Second), time.Minute).Action)

	later := stamped.Add(time.Millisecond)
	state.ForceLogoutAt = &later
	assert.Equal(t, ActionForceLogout, Reconcile(state, local, testNow.Add(time.Second), time.Minute).Action)
}

func TestReconcile_NilState(t *testing.T) {
	v := Reconcile(nil, Local{Fingerprint: "fp-a"}, testNow, time.Minute)
	assert.Equal(t, ActionNone, v.Action)
	assert.Equal(t, model.BanStatusActive, v.Status)
}
