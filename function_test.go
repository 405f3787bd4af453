package greeter_test

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/serverlesstf/greeter"
)

func TestNewFunction_Defaults(t *testing.T) {
	t.Parallel()
	f, err := greeter.NewFunction("test", "cmd/greeter")
	if err != nil {
		t.Fatal(err)
	}
	want := greeter.Function{
		Name:         "test",
		HandlerPath:  "cmd/greeter",
		Architecture: "arm64",
		LogFormat:    greeter.LogFormatText,
		ExecutionRole: greeter.ExecutionRole{
			RoleName:                 "greeter_execution_role",
			AssumeRolePolicyDocument: greeter.DefaultAssumeRolePolicy,
		},
	}
	if !cmp.Equal(f, want) {
		t.Error(cmp.Diff(want, f))
	}
}

func TestNewFunction_WithOptions(t *testing.T) {
	t.Parallel()
	f, err := greeter.NewFunction("test", "cmd/greeter",
		greeter.WithExecutionRoleName("custom_role"),
		greeter.WithManagedPolicies("AmazonS3ReadOnlyAccess"),
		greeter.WithInlinePolicy(`{"Version": "2012-10-17"}`),
		greeter.WithArchitecture("amd64"),
		greeter.WithLogFormat("JSON"),
	)
	if err != nil {
		t.Fatal(err)
	}
	want := greeter.Function{
		Name:         "test",
		HandlerPath:  "cmd/greeter",
		Architecture: "amd64",
		LogFormat:    greeter.LogFormatJSON,
		ExecutionRole: greeter.ExecutionRole{
			RoleName:                 "custom_role",
			AssumeRolePolicyDocument: greeter.DefaultAssumeRolePolicy,
			ManagedPolicies:          []string{"arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"},
			InLinePolicy:             `{"Version":"2012-10-17"}`,
		},
	}
	if !cmp.Equal(f, want) {
		t.Error(cmp.Diff(want, f))
	}
}

func TestNewFunction_RejectsInvalidOptions(t *testing.T) {
	t.Parallel()
	tc := []struct {
		description string
		opt         greeter.FunctionOption
	}{
		{
			description: "unsupported architecture",
			opt:         greeter.WithArchitecture("x86"),
		},
		{
			description: "malformed inline policy",
			opt:         greeter.WithInlinePolicy("{"),
		},
		{
			description: "resource policy without principal",
			opt:         greeter.WithResourcePolicy(`{"Statement":{"Effect":"Allow"}}`),
		},
	}
	for _, tt := range tc {
		t.Run(tt.description, func(t *testing.T) {
			_, err := greeter.NewFunction("test", "cmd/greeter", tt.opt)
			if err == nil {
				t.Error("expected error but got nil")
			}
		})
	}
}

func TestExecutionRole_CreateRoleCommand(t *testing.T) {
	t.Parallel()
	execRole := greeter.ExecutionRole{
		RoleName: "testRole",
	}
	roleCmd := execRole.CreateRoleCommand()
	want := iam.CreateRoleInput{
		RoleName:                 aws.String("testRole"),
		AssumeRolePolicyDocument: aws.String(greeter.DefaultAssumeRolePolicy),
	}
	ignore := cmpopts.IgnoreUnexported(iam.CreateRoleInput{})
	if !cmp.Equal(roleCmd, want, ignore) {
		t.Error(cmp.Diff(roleCmd, want, ignore))
	}
}

func TestExecutionRole_AttachManagedPolicyCommand(t *testing.T) {
	t.Parallel()
	execRole := greeter.ExecutionRole{
		RoleName: "testRole",
	}
	attachCmd := execRole.AttachManagedPolicyCommand(greeter.AWSLambdaBasicExecutionRole)
	want := iam.AttachRolePolicyInput{
		PolicyArn: aws.String("arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"),
		RoleName:  aws.String("testRole"),
	}
	ignore := cmpopts.IgnoreUnexported(iam.AttachRolePolicyInput{})
	if !cmp.Equal(attachCmd, want, ignore) {
		t.Error(cmp.Diff(attachCmd, want, ignore))
	}
}

func TestExecutionRole_AttachInLinePolicyCommand(t *testing.T) {
	t.Parallel()
	inlinePolicy := `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"logs:CreateLogGroup","Resource":"arn:aws:logs:us-west-2:123456789012:*"}]}`
	execRole := greeter.ExecutionRole{
		RoleName:     "testRoleName",
		InLinePolicy: inlinePolicy,
	}
	inlineCmd := execRole.AttachInLinePolicyCommand("testPolicyName")
	want := iam.PutRolePolicyInput{
		PolicyName:     aws.String("testPolicyName"),
		PolicyDocument: aws.String(inlinePolicy),
		RoleName:       aws.String("testRoleName"),
	}
	ignore := cmpopts.IgnoreUnexported(iam.PutRolePolicyInput{})
	if !cmp.Equal(inlineCmd, want, ignore) {
		t.Error(cmp.Diff(inlineCmd, want, ignore))
	}
}

func TestResourcePolicy_AddPermissionCommands(t *testing.T) {
	t.Parallel()
	resourcePolicy := greeter.ResourcePolicy{
		Principals:             []string{"events.amazonaws.com", "123456789012"},
		SourceArnCondition:     aws.String("arn:aws:events:us-east-1:123456789012:rule/nightly"),
		SourceAccountCondition: aws.String("123456789012"),
	}
	cmds := resourcePolicy.AddPermissionCommands("greeter")
	if len(cmds) != 2 {
		t.Fatalf("expected one command per principal, got %d", len(cmds))
	}
	for i, principal := range resourcePolicy.Principals {
		want := lambda.AddPermissionInput{
			Action:        aws.String("lambda:InvokeFunction"),
			FunctionName:  aws.String("greeter"),
			Principal:     aws.String(principal),
			SourceArn:     resourcePolicy.SourceArnCondition,
			SourceAccount: resourcePolicy.SourceAccountCondition,
		}
		ignore := cmp.Options{
			cmpopts.IgnoreUnexported(lambda.AddPermissionInput{}),
			cmpopts.IgnoreFields(lambda.AddPermissionInput{}, "StatementId"),
		}
		if !cmp.Equal(cmds[i], want, ignore) {
			t.Error(cmp.Diff(want, cmds[i], ignore))
		}
		if !strings.HasPrefix(aws.ToString(cmds[i].StatementId), "greeter_invoke_permission_") {
			t.Errorf("unexpected statement id %q", aws.ToString(cmds[i].StatementId))
		}
	}
}

func TestFunction_CreateFunctionCommand(t *testing.T) {
	t.Parallel()
	f, err := greeter.NewFunction("greeter", "cmd/greeter", greeter.WithLogFormat("JSON"))
	if err != nil {
		t.Fatal(err)
	}
	tc := []struct {
		description string
		code        greeter.Code
		wantCode    *types.FunctionCode
	}{
		{
			description: "inline package",
			code:        greeter.Code{ZipFile: []byte("zip")},
			wantCode:    &types.FunctionCode{ZipFile: []byte("zip")},
		},
		{
			description: "uploaded package",
			code:        greeter.Code{S3Bucket: "artifacts", S3Key: "greeter/greeter/arm64-abc.zip"},
			wantCode: &types.FunctionCode{
				S3Bucket: aws.String("artifacts"),
				S3Key:    aws.String("greeter/greeter/arm64-abc.zip"),
			},
		},
	}
	for _, tt := range tc {
		t.Run(tt.description, func(t *testing.T) {
			got, err := f.CreateFunctionCommand("arn:aws:iam::123456789012:role/greeter", tt.code)
			if err != nil {
				t.Fatal(err)
			}
			want := lambda.CreateFunctionInput{
				FunctionName:  aws.String("greeter"),
				Role:          aws.String("arn:aws:iam::123456789012:role/greeter"),
				Handler:       aws.String("bootstrap"),
				Runtime:       types.RuntimeProvidedal2023,
				Architectures: []types.Architecture{types.ArchitectureArm64},
				Code:          tt.wantCode,
				LoggingConfig: &types.LoggingConfig{LogFormat: types.LogFormat("JSON")},
			}
			ignore := cmpopts.IgnoreUnexported(lambda.CreateFunctionInput{}, types.FunctionCode{}, types.LoggingConfig{})
			if !cmp.Equal(got, want, ignore) {
				t.Error(cmp.Diff(want, got, ignore))
			}
		})
	}
}

func TestFunction_UpdateFunctionCodeCommand(t *testing.T) {
	t.Parallel()
	f, err := greeter.NewFunction("greeter", "cmd/greeter", greeter.WithArchitecture("amd64"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.UpdateFunctionCodeCommand(greeter.Code{ZipFile: []byte("zip")})
	if err != nil {
		t.Fatal(err)
	}
	want := lambda.UpdateFunctionCodeInput{
		FunctionName:  aws.String("greeter"),
		Architectures: []types.Architecture{types.ArchitectureX8664},
		ZipFile:       []byte("zip"),
	}
	ignore := cmpopts.IgnoreUnexported(lambda.UpdateFunctionCodeInput{})
	if !cmp.Equal(got, want, ignore) {
		t.Error(cmp.Diff(want, got, ignore))
	}
}

func TestFunction_UpdateFunctionConfigurationCommand(t *testing.T) {
	t.Parallel()
	f, err := greeter.NewFunction("greeter", "cmd/greeter", greeter.WithLogFormat("json"))
	if err != nil {
		t.Fatal(err)
	}
	got := f.UpdateFunctionConfigurationCommand()
	want := lambda.UpdateFunctionConfigurationInput{
		FunctionName:  aws.String("greeter"),
		LoggingConfig: &types.LoggingConfig{LogFormat: types.LogFormatJson},
	}
	ignore := cmpopts.IgnoreUnexported(lambda.UpdateFunctionConfigurationInput{}, types.LoggingConfig{})
	if !cmp.Equal(got, want, ignore) {
		t.Error(cmp.Diff(want, got, ignore))
	}
}
