package robot

import "fmt"

// AgentVersion identifies this SDK build in the retained robot state.
const AgentVersion = "1.0.0.edgesdk_go"

// DefaultEndpoint is the cloud configuration service used when no
// endpoint override is given.
const DefaultEndpoint = "https://control.inorbit.ai/cloud_sdk_robot_config"

// Command names flowing through DispatchCommand.
const (
	CommandMessage       = "message"
	CommandCustomCommand = "customCommand"
	CommandNavGoal       = "navGoal"
	CommandInitialPose   = "initialPose"
)

// Robot subtopics. Full topics are "<robot root>/<subtopic>" where the
// robot root is "r/<robot id>".
const (
	subtopicPose           = "ros/loc/data2"
	subtopicOdometry       = "ros/odometry/data"
	subtopicKeyValues      = "custom"
	subtopicLasers         = "ros/laser/data"
	subtopicPath           = "ros/loc/path"
	subtopicMap            = "map"
	subtopicState          = "state"
	subtopicEcho           = "echo"
	subtopicSetPose        = "ros/loc/set_pose"
	subtopicScriptCommand  = "custom_command/script/command"
	subtopicScriptStatus   = "custom_command/script/status"
	subtopicInCmd          = "in_cmd"
	subtopicStateRepublish = "state_republish"
)

// topicRoot returns the robot's topic prefix. It never starts with a
// path separator because robot ids are validated against leading
// slashes at session construction.
func topicRoot(robotID string) string {
	return fmt.Sprintf("r/%s", robotID)
}
