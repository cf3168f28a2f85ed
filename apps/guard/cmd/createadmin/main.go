package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"EduServer/apps/guard/internal/repository"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/mysql"
	"EduServer/pkg/util"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// 创建管理员账号。注册接口只会创建学生账号
func main() {
	configPath := pflag.StringP("config", "c", "", "yaml 配置文件路径")
	email := pflag.String("email", "", "管理员邮箱")
	password := pflag.String("password", "", "初始密码，至少 6 位")
	name := pflag.String("name", "admin", "昵称")
	pflag.Parse()

	if *email == "" || len(*password) < 6 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	db, err := mysql.Build(cfg.MySQL)
	if err != nil {
		fmt.Printf("连接MySQL失败: %v\n", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&model.Account{}); err != nil {
		fmt.Printf("建表失败: %v\n", err)
		os.Exit(1)
	}

	// cost factor 与注册接口一致
	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("加密失败: %v\n", err)
		os.Exit(1)
	}

	account := &model.Account{
		AccountID:    util.NewUUID(),
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		Name:         *name,
		PasswordHash: string(hashed),
		Role:         model.RoleAdmin,
	}
	if err := repository.NewAccountRepository(db).Create(context.Background(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			fmt.Printf("邮箱已被注册: %s\n", account.Email)
		} else {
			fmt.Printf("创建账号失败: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("管理员账号: %s\n", account.Email)
	fmt.Printf("账号ID: %s\n", account.AccountID)
}
