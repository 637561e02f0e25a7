package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/apps/api/echo"
	"github.com/studyhall/backend/core/user"
	"github.com/studyhall/backend/tests"
)

const strongPwd = "Xq7!mLp2#v"

func Test_userApi_login(t *testing.T) {
	db.Truncate()

	student := testutil.CreateUser(t, usrRepo, "Ravi Kumar", "ravi", "ravi@test.test", strongPwd, user.RoleStudent)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.test", strongPwd, user.RoleStudent)
	naughty.IsActive = false
	_, err := usrRepo.UpdateUser(ctxBg(), naughty)
	require.NoError(t, err)

	login := func(uname, pwd, ip string) (int, []byte) {
		body := marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		req.Header.Set("X-Real-IP", ip)
		app.ServeHTTP(rec, req)
		return rec.Code, rec.Body.Bytes()
	}

	t.Run("by username", func(t *testing.T) {
		code, data := login("RAVI", strongPwd, "10.0.0.1")
		require.Equal(t, http.StatusOK, code, string(data))
		var resp echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.NotEmpty(t, resp.Token)
	})
	t.Run("by email", func(t *testing.T) {
		code, _ := login(student.Email, strongPwd, "10.0.0.1")
		assert.Equal(t, http.StatusOK, code)
	})
	t.Run("wrong password", func(t *testing.T) {
		code, data := login("ravi", "nope", "10.0.0.2")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.JSONEq(t, `{"error":"authentication failed"}`, string(data))
	})
	t.Run("unknown user", func(t *testing.T) {
		code, _ := login("ghost", strongPwd, "10.0.0.2")
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("deactivated", func(t *testing.T) {
		code, data := login("ndog", strongPwd, "10.0.0.3")
		assert.Equal(t, http.StatusForbidden, code)
		assert.JSONEq(t, `{"error":"account deactivated"}`, string(data))
	})
	t.Run("rate limited", func(t *testing.T) {
		for i := 0; i < conf.Server.LoginMaxAttempts; i++ {
			code, _ := login("ravi", "nope", "10.0.0.4")
			require.Equal(t, http.StatusBadRequest, code, "attempt %d", i+1)
		}
		code, _ := login("ravi", strongPwd, "10.0.0.4")
		assert.Equal(t, http.StatusTooManyRequests, code)

		// other clients are not affected
		code, _ = login("ravi", strongPwd, "10.0.0.5")
		assert.Equal(t, http.StatusOK, code)
	})
}

func Test_userApi_permissions(t *testing.T) {
	f := setUp(t)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "student", token: getToken(t, f.student),
			wantData: marchallObj(t, echoapi.PermissionsResponse{Role: user.RoleStudent, Permissions: user.Permissions(user.RoleStudent)}),
		},
		{
			name: "admin", token: getToken(t, f.admin),
			wantData: marchallObj(t, echoapi.PermissionsResponse{Role: user.RoleAdmin, Permissions: user.Permissions(user.RoleAdmin)}),
		},
	}
	for i := range tests {
		tests[i].path = "/v1/users/me/permissions"
	}
	runTests(t, tests)
}

func Test_userApi_query(t *testing.T) {
	db.Truncate()

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin, now.Add(-4*time.Hour))
	merchant := testutil.CreateUser(t, usrRepo, "Meera Shah", "meera", "meera@test.test", "", user.RoleMerchant, now.Add(-3*time.Hour))
	caller := testutil.CreateUser(t, usrRepo, "Tara Caller", "tara", "tara@test.test", "", user.RoleTelecaller, now.Add(-2*time.Hour))
	student := testutil.CreateUser(t, usrRepo, "Ravi Kumar", "ravi", "ravi@test.test", "", user.RoleStudent, now.Add(-time.Hour))
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.test", "", user.RoleStudent, now)
	naughty.IsActive = false
	naughty, err := usrRepo.UpdateUser(ctxBg(), naughty)
	require.NoError(t, err)

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "users:read required", path: "/v1/users", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, naughty, student, caller, merchant, admin),
		},
		{name: "telecaller may read", path: path("ravi", "", nil), token: getToken(t, caller), wantData: marchallList(t, student)},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: marchallList(t)},
		{name: "search=SHAH", path: path("SHAH", "", nil), token: adminToken, wantData: marchallList(t, merchant)},
		{name: "role (unknown)", path: path("", "", nil, "lol"), token: adminToken, wantData: marchallList(t)},
		{name: "role=student", path: path("", "", nil, user.RoleStudent), token: adminToken, wantData: marchallList(t, naughty, student)},
		{
			name: "role=merchant,telecaller", path: path("", "", nil, user.RoleMerchant, user.RoleTelecaller),
			token: adminToken, wantData: marchallList(t, caller, merchant),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "created_from", path: "/v1/users?created_from=" + url.QueryEscape(now.Add(-90*time.Minute).Format(time.RFC3339)),
			token: adminToken, wantData: marchallList(t, naughty, student),
		},
		{name: "created_from (invalid)", path: "/v1/users?created_from=yesterday", token: adminToken, wantCode: http.StatusBadRequest},
		// ordering
		{
			name: "order by created_at", path: path("", "created_at", nil), token: adminToken,
			wantData: marchallList(t, admin, merchant, caller, student, naughty),
		},
		{
			name: "order by name", path: path("", "name", bPtr(true)), token: adminToken,
			wantData: marchallList(t, admin, merchant, student, caller),
		},
	}
	runTests(t, tests)
}

func Test_userApi_register(t *testing.T) {
	f := setUp(t)

	newUser := func(uname, role string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Email:           uname + "@test.test",
			Role:            role,
			Password:        strongPwd,
			PasswordConfirm: strongPwd,
		})
	}

	tests := []httpTest{
		{name: "Auth required", body: newUser("newbie", user.RoleStudent), wantCode: http.StatusUnauthorized},
		{name: "users:manage required", body: newUser("newbie", user.RoleStudent), token: getToken(t, f.merchant), wantCode: http.StatusForbidden},
		{
			name: "username taken", body: newUser("ravi", user.RoleStudent), token: getToken(t, f.admin), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"a user with this username already exists"}`),
		},
		{
			name: "invalid role", body: newUser("newbie", "root"), token: getToken(t, f.admin), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"role":"invalid role"}`),
		},
		{name: "created", body: newUser("newbie", user.RoleIncharge), token: getToken(t, f.admin), wantCode: http.StatusCreated},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/register"
	}
	runTests(t, tests)

	usr, err := usrRepo.GetUser(ctxBg(), user.GetFilter{Username: "newbie"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleIncharge, usr.Role)
	assert.NoError(t, usr.CheckPassword(strongPwd))
}

func Test_userApi_detail(t *testing.T) {
	f := setUp(t)

	tests := []httpTest{
		{name: "self", path: "/v1/users/" + f.student.ID, token: getToken(t, f.student), wantData: marchallObj(t, f.student)},
		{name: "someone else", path: "/v1/users/" + f.other.ID, token: getToken(t, f.student), wantCode: http.StatusNotFound},
		{name: "manager", path: "/v1/users/" + f.other.ID, token: getToken(t, f.admin), wantData: marchallObj(t, f.other)},
		{name: "unknown", path: "/v1/users/nope", token: getToken(t, f.admin), wantCode: http.StatusNotFound},
		{
			name: "cannot change own role", method: http.MethodPut, path: "/v1/users/" + f.student.ID, token: getToken(t, f.student),
			body: []byte(`{"role":"admin"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + f.admin.ID, token: getToken(t, f.admin),
			wantCode: http.StatusForbidden,
		},
		{
			name: "delete", method: http.MethodDelete, path: "/v1/users/" + f.other.ID, token: getToken(t, f.admin),
			wantCode: http.StatusNoContent,
		},
	}
	runTests(t, tests)

	t.Run("update own name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+f.student.ID, getToken(t, f.student), []byte(`{"name":"Ravi K"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := usrRepo.GetUser(ctxBg(), user.GetFilter{ID: f.student.ID})
		require.NoError(t, err)
		assert.Equal(t, "Ravi K", usr.Name)
		assert.Equal(t, f.student.Username, usr.Username)
		assert.Equal(t, user.RoleStudent, usr.Role)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setUp(t)

	naughty := f.other
	naughty.IsActive = false
	_, err := usrRepo.UpdateUser(ctxBg(), naughty)
	require.NoError(t, err)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   f.student.ID,
			Audience:  "StudyHall",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Role:         f.student.Role,
	}
	unrefreshableToken, err := echoapi.GenerateToken(conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runTests(t, tests)

	t.Run("Token refreshed", func(t *testing.T) {
		// cannot guess new token.. just check that it's not empty
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, f.student))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})
}

func Test_userApi_resetPassword(t *testing.T) {
	f := setUp(t)

	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	tests := []httpTest{
		{
			name: "invalid email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"email must be a valid email address"}`),
		},
		{name: "unknown email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.test"}), wantData: successData},
		{name: "known email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: f.student.Email}), wantData: successData},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/password-reset"
	}
	runTests(t, tests)

	_, sent := outbox.Last("lol@test.test")
	assert.False(t, sent)
	msg, sent := outbox.Last(f.student.Email)
	require.True(t, sent)
	assert.Equal(t, "Password Reset", msg.Subject)
	assert.Contains(t, msg.TextContent, "/password-reset/"+user.EncodeUID(f.student)+"/")
}
