package handlers

import (
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callrelay/config"
	"github.com/yoockh/callrelay/internal/services"
	"github.com/yoockh/callrelay/internal/utils"
)

type SystemHandler struct {
	instructions *config.Instructions
	postCall     services.PostCallService
	webhookURL   string
	greeting     string
	log          *logrus.Logger
}

func NewSystemHandler(instr *config.Instructions, pc services.PostCallService, webhookURL, greeting string, log *logrus.Logger) *SystemHandler {
	return &SystemHandler{
		instructions: instr,
		postCall:     pc,
		webhookURL:   webhookURL,
		greeting:     greeting,
		log:          log,
	}
}

func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Media Stream Server is running!"})
}

type systemMessageBody struct {
	SystemMessage *string `json:"systemMessage"`
}

func (h *SystemHandler) GetSystemMessage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"systemMessage": h.instructions.SystemMessage()})
}

func (h *SystemHandler) SetSystemMessage(c *gin.Context) {
	const op = "SystemHandler.SetSystemMessage"

	var body systemMessageBody
	if err := c.ShouldBindJSON(&body); err != nil || body.SystemMessage == nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "systemMessage must be a non-empty string", err))
		return
	}
	if !h.instructions.SetSystemMessage(*body.SystemMessage) {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "systemMessage must be a non-empty string", nil))
		return
	}
	h.log.Info("system message updated")
	c.JSON(http.StatusOK, gin.H{"message": "SYSTEM_MESSAGE updated successfully"})
}

func (h *SystemHandler) TestWebhook(c *gin.Context) {
	if err := h.postCall.TestWebhook(c.Request.Context(), h.webhookURL); err != nil {
		h.log.WithError(err).Error("error testing webhook")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Webhook test completed. Check your server logs for details."})
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     string   `xml:"Say"`
	Connect struct {
		Stream struct {
			URL string `xml:"url,attr"`
		} `xml:"Stream"`
	} `xml:"Connect"`
}

// IncomingCall answers the provider's voice webhook with a greeting and a
// bidirectional stream back to /media-stream on this host.
func (h *SystemHandler) IncomingCall(c *gin.Context) {
	h.log.Info("incoming call")

	var resp twimlResponse
	resp.Say = h.greeting
	resp.Connect.Stream.URL = "wss://" + c.Request.Host + "/media-stream"

	out, err := xml.Marshal(resp)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "SystemHandler.IncomingCall", "failed to render response", err))
		return
	}
	c.Data(http.StatusOK, "text/xml", append([]byte(xml.Header), out...))
}
