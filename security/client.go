// Package security 安全服务边界：为 Estate / Merchant 创建登录用户
package security

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"estatemgmt/errors"
	"estatemgmt/validation"
)

// 角色与声明
const (
	RoleEstate   = "Estate"
	RoleMerchant = "Merchant"

	ClaimEstateID   = "estateId"
	ClaimMerchantID = "merchantId"
)

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	EmailAddress string
	Password     string
	GivenName    string
	MiddleName   string
	FamilyName   string
	Roles        []string
	Claims       map[string]string
}

// IClient 安全服务客户端
type IClient interface {
	// CreateUser 创建用户并返回用户 ID；邮箱已被占用时返回 VALIDATION_ERROR
	CreateUser(ctx context.Context, req CreateUserRequest) (uuid.UUID, error)
}

// User 已创建的用户
type User struct {
	UserID         uuid.UUID
	EmailAddress   string
	HashedPassword []byte
	GivenName      string
	MiddleName     string
	FamilyName     string
	Roles          []string
	Claims         map[string]string
}

// MemoryClient 进程内安全服务，密码以 bcrypt 哈希保存
type MemoryClient struct {
	mu      sync.RWMutex
	cost    int
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

// NewMemoryClient cost 为 0 时使用 bcrypt.DefaultCost
func NewMemoryClient(cost int) *MemoryClient {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemoryClient{
		cost:    cost,
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (c *MemoryClient) CreateUser(ctx context.Context, req CreateUserRequest) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := validation.First(
		validation.ValidateEmail(req.EmailAddress),
		validation.ValidatePassword(req.Password),
		validation.ValidateRequired(req.GivenName, "名"),
		validation.ValidateRequired(req.FamilyName, "姓"),
	); err != nil {
		return uuid.Nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), c.cost)
	if err != nil {
		return uuid.Nil, errors.WrapError(err, errors.ErrCodeInternal, "密码哈希失败")
	}

	key := strings.ToLower(req.EmailAddress)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byEmail[key]; exists {
		return uuid.Nil, errors.Validationf("邮箱 %s 已被使用", req.EmailAddress)
	}

	user := User{
		UserID:         uuid.New(),
		EmailAddress:   req.EmailAddress,
		HashedPassword: hashed,
		GivenName:      req.GivenName,
		MiddleName:     req.MiddleName,
		FamilyName:     req.FamilyName,
		Roles:          append([]string(nil), req.Roles...),
		Claims:         copyClaims(req.Claims),
	}
	c.byID[user.UserID] = user
	c.byEmail[key] = user.UserID
	return user.UserID, nil
}

// User 按 ID 查找用户
func (c *MemoryClient) User(userID uuid.UUID) (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.byID[userID]
	return u, ok
}

// Authenticate 校验邮箱与密码
func (c *MemoryClient) Authenticate(ctx context.Context, email, password string) (User, error) {
	c.mu.RLock()
	id, ok := c.byEmail[strings.ToLower(email)]
	user := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return User{}, errors.NotFoundf("用户 %s 不存在", email)
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return User{}, errors.NewValidationError("密码错误")
	}
	return user, nil
}

func copyClaims(claims map[string]string) map[string]string {
	out := make(map[string]string, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}

var _ IClient = (*MemoryClient)(nil)
