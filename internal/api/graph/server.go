package graph

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/yiyuanduobao/duobao/config"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/ledger"
	"github.com/yiyuanduobao/duobao/internal/lifecycle"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/verifier"
)

// GraphQLServer GraphQL服务器，承载买家侧的全部读写入口
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// 读取GraphQL Schema定义
const schemaString = `
type Round {
  periodCode: String!
  unitPrice: Int!
  currency: String!
  totalShares: Int!
  soldShares: Int!
  remaining: Int!
  userCap: Int
  status: String!
  startAt: String!
  endAt: String!
  drawScheduledAt: String
  drawnAt: String
}

type Ticket {
  id: String!
  number: Int!
  userId: String!
  createdAt: String!
}

type PurchaseResponse {
  success: Boolean!
  message: String!
  tickets: [Ticket!]!
  soldOut: Boolean!
  timestamp: String!
}

type DrawResult {
  periodCode: String!
  winningNumber: Int!
  winningTicketId: String!
  winningUserId: String!
  timestampSum: String!
  shareCount: Int!
  algorithm: String!
  forced: Boolean!
  drawnAt: String!
}

type VerificationReport {
  periodCode: String!
  algorithm: String!
  storedNumber: Int!
  recomputedNumber: Int!
  storedSum: String!
  recomputedSum: String!
  shareCount: Int!
  match: Boolean!
  checkedAt: String!
}

type Algorithm {
  name: String!
  displayName: String!
  description: String!
  formula: String!
  active: Boolean!
  isDefault: Boolean!
}

input PurchaseInput {
  periodCode: String!
  userId: String!
  quantity: Int!
}

type Query {
  # 查询单个期次
  round(periodCode: String!): Round!

  # 按状态查询期次列表
  rounds(status: String!, limit: Int): [Round!]!

  # 查询用户在某期次持有的凭证
  myTickets(periodCode: String!, userId: String!): [Ticket!]!

  # 查询开奖结果
  drawResult(periodCode: String!): DrawResult!

  # 复核开奖结果
  verifyDraw(periodCode: String!): VerificationReport!

  # 公示开奖算法
  algorithms: [Algorithm!]!
}

type Mutation {
  # 购买份额
  purchase(input: PurchaseInput!): PurchaseResponse!
}

schema {
  query: Query
  mutation: Mutation
}
`

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(lg *ledger.TicketLedger, ctrl *lifecycle.Controller, vf *verifier.Verifier, reg *algorithm.Registry) *GraphQLServer {
	resolver := NewResolver(lg, ctrl, vf, reg)

	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	handler := &relay.Handler{Schema: schema}

	return &GraphQLServer{
		schema:   schema,
		handler:  handler,
		resolver: resolver,
	}
}

// Start 启动GraphQL服务器
func (s *GraphQLServer) Start(port int) error {
	mux := http.NewServeMux()

	mux.Handle(config.AppConfig.GraphQL.Path, s.handler)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(playgroundHTML))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("GraphQL服务已启动，API端点: %s, Playground: http://localhost%s/",
		config.AppConfig.GraphQL.Path, addr)

	return http.ListenAndServe(addr, mux)
}

// Resolver GraphQL解析器
type Resolver struct {
	ledger     *ledger.TicketLedger
	controller *lifecycle.Controller
	verifier   *verifier.Verifier
	registry   *algorithm.Registry
}

// NewResolver 创建新的解析器
func NewResolver(lg *ledger.TicketLedger, ctrl *lifecycle.Controller, vf *verifier.Verifier, reg *algorithm.Registry) *Resolver {
	return &Resolver{ledger: lg, controller: ctrl, verifier: vf, registry: reg}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("无效的用户ID: %s", s)
	}
	return id, nil
}

// Round 查询单个期次
func (r *Resolver) Round(ctx context.Context, args struct{ PeriodCode string }) (*RoundResolver, error) {
	round, err := r.ledger.GetRound(ctx, args.PeriodCode)
	if err != nil {
		return nil, err
	}
	return &RoundResolver{round: round}, nil
}

// Rounds 按状态查询期次列表
func (r *Resolver) Rounds(ctx context.Context, args struct {
	Status string
	Limit  *int32
}) ([]*RoundResolver, error) {
	limit := 20
	if args.Limit != nil && *args.Limit > 0 {
		limit = int(*args.Limit)
	}

	rounds, err := r.ledger.ListRounds(ctx, model.RoundStatus(args.Status), limit)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*RoundResolver, len(rounds))
	for i, round := range rounds {
		resolvers[i] = &RoundResolver{round: round}
	}
	return resolvers, nil
}

// MyTickets 查询用户在某期次持有的凭证
func (r *Resolver) MyTickets(ctx context.Context, args struct {
	PeriodCode string
	UserID     string
}) ([]*TicketResolver, error) {
	userID, err := parseUserID(args.UserID)
	if err != nil {
		return nil, err
	}

	tickets, err := r.ledger.ListUserTickets(ctx, args.PeriodCode, userID)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*TicketResolver, len(tickets))
	for i := range tickets {
		resolvers[i] = &TicketResolver{ticket: tickets[i]}
	}
	return resolvers, nil
}

// DrawResult 查询开奖结果
func (r *Resolver) DrawResult(ctx context.Context, args struct{ PeriodCode string }) (*DrawResultResolver, error) {
	result, err := r.controller.GetDrawResult(ctx, args.PeriodCode)
	if err != nil {
		return nil, err
	}
	return &DrawResultResolver{result: result}, nil
}

// VerifyDraw 复核开奖结果
func (r *Resolver) VerifyDraw(ctx context.Context, args struct{ PeriodCode string }) (*VerificationReportResolver, error) {
	report, err := r.verifier.Verify(ctx, args.PeriodCode)
	if err != nil {
		return nil, err
	}
	return &VerificationReportResolver{report: report}, nil
}

// Algorithms 公示开奖算法
func (r *Resolver) Algorithms(ctx context.Context) ([]*AlgorithmResolver, error) {
	algos, err := r.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	resolvers := make([]*AlgorithmResolver, len(algos))
	for i := range algos {
		resolvers[i] = &AlgorithmResolver{algo: algos[i]}
	}
	return resolvers, nil
}

// Purchase 购买份额
func (r *Resolver) Purchase(ctx context.Context, args struct{ Input PurchaseInput }) (*PurchaseResponseResolver, error) {
	failResponse := &PurchaseResponseResolver{
		response: &model.PurchaseResponse{
			Success:   false,
			Message:   "购买失败",
			Tickets:   []model.Ticket{},
			Timestamp: time.Now(),
		},
	}

	userID, err := parseUserID(args.Input.UserID)
	if err != nil {
		return failResponse, err
	}

	request := &model.PurchaseRequest{
		PeriodCode: args.Input.PeriodCode,
		UserID:     userID,
		Quantity:   int(args.Input.Quantity),
	}

	response, err := r.ledger.Purchase(ctx, request)
	if err != nil {
		failResponse.response.Message = fmt.Sprintf("购买失败: %v", err)
		return failResponse, err
	}

	return &PurchaseResponseResolver{response: response}, nil
}

// RoundResolver 期次解析器
type RoundResolver struct {
	round *model.Round
}

func (r *RoundResolver) PeriodCode() string {
	return r.round.PeriodCode
}

func (r *RoundResolver) UnitPrice() int32 {
	return int32(r.round.UnitPrice)
}

func (r *RoundResolver) Currency() string {
	return r.round.Currency
}

func (r *RoundResolver) TotalShares() int32 {
	return int32(r.round.TotalShares)
}

func (r *RoundResolver) SoldShares() int32 {
	return int32(r.round.SoldShares)
}

func (r *RoundResolver) Remaining() int32 {
	return int32(r.round.Remaining())
}

func (r *RoundResolver) UserCap() *int32 {
	if !r.round.UserCap.Limited {
		return nil
	}
	max := int32(r.round.UserCap.Max)
	return &max
}

func (r *RoundResolver) Status() string {
	return string(r.round.Status)
}

func (r *RoundResolver) StartAt() string {
	return r.round.StartAt.Format(time.RFC3339)
}

func (r *RoundResolver) EndAt() string {
	return r.round.EndAt.Format(time.RFC3339)
}

func (r *RoundResolver) DrawScheduledAt() *string {
	if r.round.DrawScheduledAt == nil {
		return nil
	}
	s := r.round.DrawScheduledAt.Format(time.RFC3339)
	return &s
}

func (r *RoundResolver) DrawnAt() *string {
	if r.round.DrawnAt == nil {
		return nil
	}
	s := r.round.DrawnAt.Format(time.RFC3339)
	return &s
}

// TicketResolver 凭证解析器
type TicketResolver struct {
	ticket model.Ticket
}

func (r *TicketResolver) ID() string {
	return r.ticket.ID
}

func (r *TicketResolver) Number() int32 {
	return int32(r.ticket.Number)
}

func (r *TicketResolver) UserID() string {
	return strconv.FormatInt(r.ticket.UserID, 10)
}

func (r *TicketResolver) CreatedAt() string {
	return r.ticket.CreatedAt.Format(time.RFC3339)
}

// PurchaseResponseResolver 购买响应解析器
type PurchaseResponseResolver struct {
	response *model.PurchaseResponse
}

func (r *PurchaseResponseResolver) Success() bool {
	return r.response.Success
}

func (r *PurchaseResponseResolver) Message() string {
	return r.response.Message
}

func (r *PurchaseResponseResolver) Tickets() []*TicketResolver {
	resolvers := make([]*TicketResolver, len(r.response.Tickets))
	for i := range r.response.Tickets {
		resolvers[i] = &TicketResolver{ticket: r.response.Tickets[i]}
	}
	return resolvers
}

func (r *PurchaseResponseResolver) SoldOut() bool {
	return r.response.SoldOut
}

func (r *PurchaseResponseResolver) Timestamp() string {
	return r.response.Timestamp.Format(time.RFC3339)
}

// DrawResultResolver 开奖结果解析器
type DrawResultResolver struct {
	result *model.DrawResult
}

func (r *DrawResultResolver) PeriodCode() string {
	return r.result.PeriodCode
}

func (r *DrawResultResolver) WinningNumber() int32 {
	return int32(r.result.WinningNumber)
}

func (r *DrawResultResolver) WinningTicketID() string {
	return r.result.WinningTicketID
}

func (r *DrawResultResolver) WinningUserID() string {
	return strconv.FormatInt(r.result.WinningUserID, 10)
}

func (r *DrawResultResolver) TimestampSum() string {
	return strconv.FormatInt(r.result.TimestampSum, 10)
}

func (r *DrawResultResolver) ShareCount() int32 {
	return int32(r.result.ShareCount)
}

func (r *DrawResultResolver) Algorithm() string {
	return r.result.Algorithm
}

func (r *DrawResultResolver) Forced() bool {
	return r.result.Forced
}

func (r *DrawResultResolver) DrawnAt() string {
	return r.result.DrawnAt.Format(time.RFC3339)
}

// VerificationReportResolver 复核报告解析器
type VerificationReportResolver struct {
	report *model.VerificationReport
}

func (r *VerificationReportResolver) PeriodCode() string {
	return r.report.PeriodCode
}

func (r *VerificationReportResolver) Algorithm() string {
	return r.report.Algorithm
}

func (r *VerificationReportResolver) StoredNumber() int32 {
	return int32(r.report.StoredNumber)
}

func (r *VerificationReportResolver) RecomputedNumber() int32 {
	return int32(r.report.RecomputedNumber)
}

func (r *VerificationReportResolver) StoredSum() string {
	return strconv.FormatInt(r.report.StoredSum, 10)
}

func (r *VerificationReportResolver) RecomputedSum() string {
	return strconv.FormatInt(r.report.RecomputedSum, 10)
}

func (r *VerificationReportResolver) ShareCount() int32 {
	return int32(r.report.ShareCount)
}

func (r *VerificationReportResolver) Match() bool {
	return r.report.Match
}

func (r *VerificationReportResolver) CheckedAt() string {
	return r.report.CheckedAt.Format(time.RFC3339)
}

// AlgorithmResolver 算法公示解析器
type AlgorithmResolver struct {
	algo model.DrawAlgorithm
}

func (r *AlgorithmResolver) Name() string {
	return r.algo.Name
}

func (r *AlgorithmResolver) DisplayName() string {
	return r.algo.DisplayName
}

func (r *AlgorithmResolver) Description() string {
	return r.algo.Description
}

func (r *AlgorithmResolver) Formula() string {
	return r.algo.Formula
}

func (r *AlgorithmResolver) Active() bool {
	return r.algo.Active
}

func (r *AlgorithmResolver) IsDefault() bool {
	return r.algo.IsDefault
}

// PurchaseInput 购买输入类型
type PurchaseInput struct {
	PeriodCode string
	UserID     string
	Quantity   int32
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Duobao GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%;
        width: 100%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading">
      <span class="title">Duobao GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '/graphql'
      })
    })</script>
</body>
</html>
`
